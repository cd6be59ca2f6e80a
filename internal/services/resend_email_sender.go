package services

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendSender delivers mail through the Resend HTTP API. It is the
// transport of choice on hosts that block outbound SMTP.
type ResendSender struct {
	client   *resend.Client
	from     string
	fromName string
}

func NewResendSender(apiKey, from, fromName string) *ResendSender {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}
	return &ResendSender{client: client, from: from, fromName: fromName}
}

func (s *ResendSender) Send(to string, subject string, body string) error {
	if s.client == nil {
		return fmt.Errorf("resend sender not configured (missing RESEND_API_KEY)")
	}

	from := s.from
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.from)
	}

	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}

	_, err := s.client.Emails.SendWithContext(context.Background(), params)
	return err
}
