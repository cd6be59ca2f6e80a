package models

import "time"

// PasswordResetToken is a single-use credential bound to one user and a
// time window. It is never deleted in-place: consumption and supersession
// both just set UsedAt.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
