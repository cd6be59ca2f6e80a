package services

import "errors"

// Domain error taxonomy. Handlers map these to HTTP statuses; anything
// outside this list is an internal error and never reaches the client
// verbatim.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrTokenNotFound      = errors.New("invalid or expired token")
	ErrTokenAlreadyUsed   = errors.New("reset token has already been used")
	ErrTokenExpired       = errors.New("reset token has expired")
	ErrUserNotFound       = errors.New("user not found")
)
