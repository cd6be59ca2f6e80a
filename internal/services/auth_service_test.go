package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"passreset/internal/security"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type captureMailer struct {
	sent chan sentEmail
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{sent: make(chan sentEmail, 1)}
}

func (m *captureMailer) Send(to string, subject string, body string) error {
	m.sent <- sentEmail{To: to, Subject: subject, Body: body}
	return nil
}

type failingMailer struct{}

func (m *failingMailer) Send(to string, subject string, body string) error {
	return fmt.Errorf("smtp connection refused")
}

func newTestService(db *sql.DB, mailer EmailSender) *AuthService {
	s := NewAuthService(
		db,
		security.NewBcryptHasher(bcrypt.MinCost),
		security.NewResetTokenGenerator(),
		mailer,
		"http://localhost:5173",
		30*time.Minute,
	)
	s.now = func() time.Time { return testNow }
	return s
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword: %v", err)
	}
	return string(hash)
}

const userColumnsPattern = `SELECT id, email, password_hash, is_active, created_at, updated_at\s+FROM users`
const tokenColumnsPattern = `SELECT id, user_id, token, expires_at, used_at, created_at\s+FROM password_reset_tokens`

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "is_active", "created_at", "updated_at"})
}

func tokenRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "used_at", "created_at"})
}

func TestRegisterSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(userColumnsPattern).
		WithArgs("user@example.com").
		WillReturnRows(userRows())
	mock.ExpectQuery("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "user@example.com", sqlmock.AnyArg(), true, testNow, testNow).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(testNow))

	s := newTestService(db, newCaptureMailer())
	u, err := s.Register(context.Background(), "User@Example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "user@example.com" {
		t.Fatalf("expected lower-cased email, got %q", u.Email)
	}
	if !u.IsActive {
		t.Fatal("expected new user to be active")
	}
	if u.PasswordHash == "password123" || u.PasswordHash == "" {
		t.Fatalf("expected hashed password, got %q", u.PasswordHash)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(userColumnsPattern).
		WithArgs("user@example.com").
		WillReturnRows(userRows().AddRow("u1", "user@example.com", "hash", true, testNow, testNow))

	s := newTestService(db, newCaptureMailer())
	// Case-equivalent address collides with the stored account.
	_, err = s.Register(context.Background(), "USER@example.com", "password123")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRegisterDuplicateEmailInsertRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(userColumnsPattern).
		WithArgs("user@example.com").
		WillReturnRows(userRows())
	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	s := newTestService(db, newCaptureMailer())
	_, err = s.Register(context.Background(), "user@example.com", "password123")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoginUnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	// Unknown email.
	mock.ExpectQuery(userColumnsPattern).
		WithArgs("nobody@example.com").
		WillReturnRows(userRows())
	// Known email, wrong password.
	mock.ExpectQuery(userColumnsPattern).
		WithArgs("user@example.com").
		WillReturnRows(userRows().AddRow("u1", "user@example.com", mustHash(t, "password123"), true, testNow, testNow))

	s := newTestService(db, newCaptureMailer())

	_, errUnknown := s.Login(context.Background(), "nobody@example.com", "password123")
	_, errWrongPw := s.Login(context.Background(), "user@example.com", "wrongpassword")

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatalf("errors must be identical: %q vs %q", errUnknown, errWrongPw)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(userColumnsPattern).
		WithArgs("user@example.com").
		WillReturnRows(userRows().AddRow("u1", "user@example.com", mustHash(t, "password123"), false, testNow, testNow))

	s := newTestService(db, newCaptureMailer())
	_, err = s.Login(context.Background(), "user@example.com", "password123")
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoginSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(userColumnsPattern).
		WithArgs("user@example.com").
		WillReturnRows(userRows().AddRow("u1", "user@example.com", mustHash(t, "password123"), true, testNow, testNow))

	s := newTestService(db, newCaptureMailer())
	u, err := s.Login(context.Background(), "user@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.ID != "u1" {
		t.Fatalf("expected user u1, got %q", u.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestForgotPasswordUnknownEmailDoesNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(userColumnsPattern).
		WithArgs("nobody@example.com").
		WillReturnRows(userRows())

	mailer := newCaptureMailer()
	s := newTestService(db, mailer)
	if err := s.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	select {
	case e := <-mailer.sent:
		t.Fatalf("no email must be sent for unknown addresses, got %+v", e)
	case <-time.After(100 * time.Millisecond):
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestForgotPasswordIssuesTokenAndSendsLink(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(userColumnsPattern).
		WithArgs("user@example.com").
		WillReturnRows(userRows().AddRow("u1", "user@example.com", "hash", true, testNow, testNow))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens\s+SET used_at = \$1\s+WHERE user_id = \$2 AND used_at IS NULL`).
		WithArgs(testNow, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO password_reset_tokens").
		WithArgs(sqlmock.AnyArg(), "u1", sqlmock.AnyArg(), testNow.Add(30*time.Minute), testNow).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(testNow))
	mock.ExpectCommit()

	mailer := newCaptureMailer()
	s := newTestService(db, mailer)
	if err := s.ForgotPassword(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	select {
	case e := <-mailer.sent:
		if e.To != "user@example.com" {
			t.Fatalf("expected email to user@example.com, got %q", e.To)
		}
		if e.Subject != "Password Reset Request" {
			t.Fatalf("unexpected subject %q", e.Subject)
		}
		if !strings.Contains(e.Body, "http://localhost:5173/reset-password?token=") {
			t.Fatalf("expected reset link in body, got: %s", e.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reset email")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestForgotPasswordDeliveryFailureIsSwallowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(userColumnsPattern).
		WithArgs("user@example.com").
		WillReturnRows(userRows().AddRow("u1", "user@example.com", "hash", true, testNow, testNow))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO password_reset_tokens").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(testNow))
	mock.ExpectCommit()

	s := newTestService(db, &failingMailer{})
	if err := s.ForgotPassword(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("delivery failure must not surface, got %v", err)
	}
}

func TestForgotPasswordRetriesAfterIssueRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(userColumnsPattern).
		WithArgs("user@example.com").
		WillReturnRows(userRows().AddRow("u1", "user@example.com", "hash", true, testNow, testNow))

	// First attempt loses the invalidate/insert race against a
	// concurrent forgot-password and trips the partial unique index.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO password_reset_tokens").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_password_reset_tokens_one_unused"})
	mock.ExpectRollback()

	// Second attempt supersedes the racing token and wins.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO password_reset_tokens").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(testNow))
	mock.ExpectCommit()

	mailer := newCaptureMailer()
	s := newTestService(db, mailer)
	if err := s.ForgotPassword(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	select {
	case <-mailer.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reset email")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestValidateTokenNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(tokenColumnsPattern).
		WithArgs("missing").
		WillReturnRows(tokenRows())

	s := newTestService(db, newCaptureMailer())
	resp, err := s.ValidateToken(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if resp.Valid {
		t.Fatal("expected valid=false")
	}
	if resp.Message != "Invalid or expired token" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestValidateTokenAlreadyUsed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	used := testNow.Add(-time.Minute)
	mock.ExpectQuery(tokenColumnsPattern).
		WithArgs("raw-token").
		WillReturnRows(tokenRows().AddRow("t1", "u1", "raw-token", testNow.Add(10*time.Minute), used, testNow.Add(-time.Hour)))

	s := newTestService(db, newCaptureMailer())
	resp, err := s.ValidateToken(context.Background(), "raw-token")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if resp.Valid || resp.Message != "This reset link has already been used" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(tokenColumnsPattern).
		WithArgs("raw-token").
		WillReturnRows(tokenRows().AddRow("t1", "u1", "raw-token", testNow.Add(-time.Second), nil, testNow.Add(-time.Hour)))

	s := newTestService(db, newCaptureMailer())
	resp, err := s.ValidateToken(context.Background(), "raw-token")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if resp.Valid || resp.Message != "This reset link has expired" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestValidateTokenValid(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(tokenColumnsPattern).
		WithArgs("raw-token").
		WillReturnRows(tokenRows().AddRow("t1", "u1", "raw-token", testNow.Add(10*time.Minute), nil, testNow))
	mock.ExpectQuery(userColumnsPattern).
		WithArgs("u1").
		WillReturnRows(userRows().AddRow("u1", "user@example.com", "hash", true, testNow, testNow))

	s := newTestService(db, newCaptureMailer())
	resp, err := s.ValidateToken(context.Background(), "raw-token")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if !resp.Valid || resp.Message != "Token is valid" || resp.Email != "user@example.com" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResetPasswordSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(tokenColumnsPattern + `\s+WHERE token = \$1 FOR UPDATE`).
		WithArgs("raw-token").
		WillReturnRows(tokenRows().AddRow("t1", "u1", "raw-token", testNow.Add(10*time.Minute), nil, testNow))
	mock.ExpectQuery(userColumnsPattern).
		WithArgs("u1").
		WillReturnRows(userRows().AddRow("u1", "user@example.com", "old-hash", true, testNow, testNow))
	mock.ExpectExec(`UPDATE users SET password_hash`).
		WithArgs(sqlmock.AnyArg(), testNow, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE password_reset_tokens SET used_at`).
		WithArgs(testNow, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := newTestService(db, newCaptureMailer())
	if err := s.ResetPassword(context.Background(), "raw-token", "newpass123"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResetPasswordNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(tokenColumnsPattern).
		WithArgs("missing").
		WillReturnRows(tokenRows())
	mock.ExpectRollback()

	s := newTestService(db, newCaptureMailer())
	err = s.ResetPassword(context.Background(), "missing", "newpass123")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestResetPasswordAlreadyUsed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	used := testNow.Add(-time.Minute)
	mock.ExpectBegin()
	mock.ExpectQuery(tokenColumnsPattern).
		WithArgs("raw-token").
		WillReturnRows(tokenRows().AddRow("t1", "u1", "raw-token", testNow.Add(10*time.Minute), used, testNow))
	mock.ExpectRollback()

	s := newTestService(db, newCaptureMailer())
	err = s.ResetPassword(context.Background(), "raw-token", "newpass123")
	if !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
	}
}

func TestResetPasswordExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(tokenColumnsPattern).
		WithArgs("raw-token").
		WillReturnRows(tokenRows().AddRow("t1", "u1", "raw-token", testNow.Add(-time.Second), nil, testNow.Add(-time.Hour)))
	mock.ExpectRollback()

	s := newTestService(db, newCaptureMailer())
	err = s.ResetPassword(context.Background(), "raw-token", "newpass123")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestResetPasswordUserMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(tokenColumnsPattern).
		WithArgs("raw-token").
		WillReturnRows(tokenRows().AddRow("t1", "gone", "raw-token", testNow.Add(10*time.Minute), nil, testNow))
	mock.ExpectQuery(userColumnsPattern).
		WithArgs("gone").
		WillReturnRows(userRows())
	mock.ExpectRollback()

	s := newTestService(db, newCaptureMailer())
	err = s.ResetPassword(context.Background(), "raw-token", "newpass123")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestResetPasswordLosesConsumeRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	// The row looked unused under the lock, but the guarded update
	// touches zero rows: a concurrent reset won and this one must
	// report the token as used.
	mock.ExpectBegin()
	mock.ExpectQuery(tokenColumnsPattern).
		WithArgs("raw-token").
		WillReturnRows(tokenRows().AddRow("t1", "u1", "raw-token", testNow.Add(10*time.Minute), nil, testNow))
	mock.ExpectQuery(userColumnsPattern).
		WithArgs("u1").
		WillReturnRows(userRows().AddRow("u1", "user@example.com", "old-hash", true, testNow, testNow))
	mock.ExpectExec(`UPDATE users SET password_hash`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE password_reset_tokens SET used_at`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	s := newTestService(db, newCaptureMailer())
	err = s.ResetPassword(context.Background(), "raw-token", "newpass123")
	if !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
