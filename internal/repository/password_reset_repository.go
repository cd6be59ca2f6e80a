package repository

import (
	"context"
	"database/sql"
	"time"

	"passreset/internal/models"
)

type PasswordResetRepository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	GetByToken(ctx context.Context, token string) (*models.PasswordResetToken, error)
	// GetByTokenForUpdate locks the token row for the lifetime of the
	// surrounding transaction, serializing concurrent consumers.
	GetByTokenForUpdate(ctx context.Context, token string) (*models.PasswordResetToken, error)
	ListByUser(ctx context.Context, userID string) ([]models.PasswordResetToken, error)
	// InvalidateAllForUser marks every unused token of the user as used
	// and reports how many rows it touched.
	InvalidateAllForUser(ctx context.Context, userID string, usedAt time.Time) (int64, error)
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error
}

type passwordResetRepository struct {
	db DBTX
}

func NewPasswordResetRepository(db DBTX) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		token.ID, token.UserID, token.Token, token.ExpiresAt, token.CreatedAt,
	).Scan(&token.CreatedAt)
	return err
}

const selectTokenColumns = `
	SELECT id, user_id, token, expires_at, used_at, created_at
	FROM password_reset_tokens
`

func (r *passwordResetRepository) GetByToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	return r.getByToken(ctx, selectTokenColumns+` WHERE token = $1`, token)
}

func (r *passwordResetRepository) GetByTokenForUpdate(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	return r.getByToken(ctx, selectTokenColumns+` WHERE token = $1 FOR UPDATE`, token)
}

func (r *passwordResetRepository) getByToken(ctx context.Context, query string, token string) (*models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, token).
		Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &usedAt, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

func (r *passwordResetRepository) ListByUser(ctx context.Context, userID string) ([]models.PasswordResetToken, error) {
	query := selectTokenColumns + `
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.PasswordResetToken
	for rows.Next() {
		var t models.PasswordResetToken
		var usedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &usedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		if usedAt.Valid {
			t.UsedAt = &usedAt.Time
		}
		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

func (r *passwordResetRepository) InvalidateAllForUser(ctx context.Context, userID string, usedAt time.Time) (int64, error) {
	query := `
		UPDATE password_reset_tokens
		SET used_at = $1
		WHERE user_id = $2 AND used_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, usedAt, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *passwordResetRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	query := `UPDATE password_reset_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, usedAt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}
