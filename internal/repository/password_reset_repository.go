package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pulse/internal/models"
	"pulse/internal/tokens"
)

type PasswordResetRepository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	Redeem(ctx context.Context, tokenHash string, usedAt time.Time, newPasswordHash string) (string, error)
	ListSpent(ctx context.Context, now time.Time) ([]models.PasswordResetToken, error)
}

type passwordResetRepository struct {
	db *sql.DB
}

func NewPasswordResetRepository(db *sql.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query, token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt).Scan(&token.CreatedAt)
	return err
}

func (r *passwordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`

	var t models.PasswordResetToken
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &usedAt, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tokens.ErrNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

// Redeem burns the token and updates the subject's password hash in one
// transaction. The conditional used_at update is the only concurrency
// control: of N concurrent calls on the same token exactly one sees a row,
// the rest classify the loss and fail. If the password update cannot be
// applied the transaction rolls back and the token stays unused.
func (r *passwordResetRepository) Redeem(ctx context.Context, tokenHash string, usedAt time.Time, newPasswordHash string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var tokenID, userID string
	err = tx.QueryRowContext(ctx, `
		UPDATE password_reset_tokens
		SET used_at = $1
		WHERE token_hash = $2 AND used_at IS NULL AND expires_at > $1
		RETURNING id, user_id
	`, usedAt, tokenHash).Scan(&tokenID, &userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", r.classify(ctx, tx, tokenHash, usedAt)
		}
		return "", err
	}

	res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, newPasswordHash, userID)
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		// Subject deleted since issuance; roll back so the token is not
		// burned without its effect.
		return "", fmt.Errorf("reset subject missing: %w", tokens.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return userID, nil
}

func (r *passwordResetRepository) classify(ctx context.Context, tx *sql.Tx, tokenHash string, now time.Time) error {
	var usedAt sql.NullTime
	var expiresAt time.Time
	err := tx.QueryRowContext(ctx, `
		SELECT used_at, expires_at FROM password_reset_tokens WHERE token_hash = $1
	`, tokenHash).Scan(&usedAt, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return tokens.ErrNotFound
		}
		return err
	}
	if usedAt.Valid {
		return tokens.ErrAlreadyUsed
	}
	if !now.Before(expiresAt) {
		return tokens.ErrExpired
	}
	// Row was live when we looked: a concurrent redeemer consumed it
	// between our update and this read.
	return tokens.ErrAlreadyUsed
}

func (r *passwordResetRepository) ListSpent(ctx context.Context, now time.Time) ([]models.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE used_at IS NOT NULL OR expires_at <= $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spent []models.PasswordResetToken
	for rows.Next() {
		var t models.PasswordResetToken
		var usedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &usedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		if usedAt.Valid {
			t.UsedAt = &usedAt.Time
		}
		spent = append(spent, t)
	}
	return spent, rows.Err()
}
