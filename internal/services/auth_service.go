package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"passreset/internal/models"
	"passreset/internal/repository"
	"passreset/internal/security"
)

// AuthService orchestrates registration, login and the reset token
// lifecycle. Every multi-step store mutation runs inside one
// transaction; the database is the only source of truth between
// concurrent requests.
type AuthService struct {
	db            *sql.DB
	hasher        security.PasswordHasher
	tokens        security.TokenGenerator
	mailer        EmailSender
	frontendURL   string
	tokenLifetime time.Duration

	now func() time.Time
}

func NewAuthService(
	db *sql.DB,
	hasher security.PasswordHasher,
	tokens security.TokenGenerator,
	mailer EmailSender,
	frontendURL string,
	tokenLifetime time.Duration,
) *AuthService {
	return &AuthService{
		db:            db,
		hasher:        hasher,
		tokens:        tokens,
		mailer:        mailer,
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		tokenLifetime: tokenLifetime,
		now:           time.Now,
	}
}

// normalizeEmail implements the case policy: emails are stored and
// compared lower-cased, so case-equivalent addresses are one account.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new active account. The returned user never
// carries the password hash into a response (json:"-").
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)

	users := repository.NewUserRepository(s.db)
	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := users.Create(ctx, u); err != nil {
		// Two registrations can race past the lookup; the unique
		// index decides.
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

// Login verifies credentials. Unknown email and wrong password are
// deliberately the same error so the endpoint cannot be used to probe
// which addresses are registered.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	users := repository.NewUserRepository(s.db)

	u, err := users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !u.IsActive {
		return nil, ErrAccountInactive
	}

	return u, nil
}

// ForgotPassword issues a reset token and mails the reset link. It
// reports success whether or not the email is registered, and email
// delivery runs in the background: its failure is logged, never
// surfaced.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	users := repository.NewUserRepository(s.db)

	u, err := users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	token, err := s.issueResetToken(ctx, u.ID)
	if isUniqueViolation(err) {
		// A concurrent forgot-password for the same user inserted its
		// token between our invalidate and insert. Invalidate again and
		// let the newest token win.
		token, err = s.issueResetToken(ctx, u.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token.Token)
	go s.sendResetEmail(u.Email, resetLink)

	return nil
}

// issueResetToken supersedes every unused token of the user and inserts
// a fresh one, atomically. The partial unique index on unused tokens
// turns an invalidate/insert race into a unique violation for one of
// the two transactions.
func (s *AuthService) issueResetToken(ctx context.Context, userID string) (*models.PasswordResetToken, error) {
	value, err := s.tokens.Generate()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	resets := repository.NewPasswordResetRepository(tx)

	now := s.now().UTC()
	if _, err := resets.InvalidateAllForUser(ctx, userID, now); err != nil {
		return nil, err
	}

	token := &models.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     value,
		ExpiresAt: now.Add(s.tokenLifetime),
		CreatedAt: now,
	}
	if err := resets.Create(ctx, token); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return token, nil
}

func (s *AuthService) sendResetEmail(to string, resetLink string) {
	expiresMinutes := int(s.tokenLifetime / time.Minute)
	body := passwordResetEmailBody(resetLink, to, expiresMinutes)
	if err := s.mailer.Send(to, passwordResetSubject, body); err != nil {
		log.Printf("Failed to send password reset email to %s: %v", to, err)
		return
	}
	log.Printf("Password reset email sent to %s", to)
}

// ValidateToken is a side-effect-free probe for the frontend. It never
// returns a domain error; every failure mode is encoded in the payload.
func (s *AuthService) ValidateToken(ctx context.Context, tokenValue string) (*models.TokenValidationResponse, error) {
	resets := repository.NewPasswordResetRepository(s.db)

	token, err := resets.GetByToken(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return &models.TokenValidationResponse{Valid: false, Message: "Invalid or expired token"}, nil
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if token.UsedAt != nil {
		return &models.TokenValidationResponse{Valid: false, Message: "This reset link has already been used"}, nil
	}

	if s.now().UTC().After(token.ExpiresAt) {
		return &models.TokenValidationResponse{Valid: false, Message: "This reset link has expired"}, nil
	}

	resp := &models.TokenValidationResponse{Valid: true, Message: "Token is valid"}
	users := repository.NewUserRepository(s.db)
	if u, err := users.GetByID(ctx, token.UserID); err == nil {
		resp.Email = u.Email
	}
	return resp, nil
}

// ResetPassword consumes a valid token and sets the new password. The
// token row is locked for the whole check-and-mutate sequence, so of N
// concurrent attempts with the same token exactly one commits; the rest
// observe ErrTokenAlreadyUsed.
func (s *AuthService) ResetPassword(ctx context.Context, tokenValue, newPassword string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	resets := repository.NewPasswordResetRepository(tx)
	users := repository.NewUserRepository(tx)

	token, err := resets.GetByTokenForUpdate(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to look up token: %w", err)
	}

	if token.UsedAt != nil {
		return ErrTokenAlreadyUsed
	}

	now := s.now().UTC()
	if now.After(token.ExpiresAt) {
		return ErrTokenExpired
	}

	// Should not happen with ON DELETE CASCADE, handled anyway.
	u, err := users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := users.UpdatePasswordHash(ctx, u.ID, hash, now); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := resets.MarkUsed(ctx, token.ID, now); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrTokenAlreadyUsed
		}
		return fmt.Errorf("failed to consume token: %w", err)
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
