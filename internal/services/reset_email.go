package services

import "fmt"

const passwordResetSubject = "Password Reset Request"

// passwordResetEmailBody renders the HTML reset message. The raw token
// only ever appears inside the embedded link.
func passwordResetEmailBody(resetLink string, email string, expiresMinutes int) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Password Reset</title>
</head>
<body style="font-family: sans-serif; margin: 0; padding: 20px;">
<div style="max-width: 600px; margin: 0 auto;">
<h1>Password Reset Request</h1>
<p>Hello,</p>
<p>We received a request to reset the password for your account associated with <strong>%s</strong>.</p>
<p>Click the link below to reset your password:</p>
<p><a href="%s">Reset Password</a></p>
<p>Or copy and paste this link into your browser:</p>
<p style="word-break: break-all; font-size: 12px;">%s</p>
<p><strong>Security Notice:</strong> This link will expire in %d minutes.
If you didn't request this password reset, please ignore this email.</p>
<p style="color: #666; font-size: 14px;">This is an automated email. Please do not reply.</p>
</div>
</body>
</html>`, email, resetLink, resetLink, expiresMinutes)
}
