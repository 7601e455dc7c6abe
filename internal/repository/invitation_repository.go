package repository

import (
	"context"
	"database/sql"
	"time"

	"pulse/internal/models"
	"pulse/internal/tokens"
)

type InvitationRepository interface {
	Create(ctx context.Context, inv *models.Invitation) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Invitation, error)
	Redeem(ctx context.Context, tokenHash string, usedAt time.Time, newUser *models.User) (*models.User, error)
	ListSpent(ctx context.Context, now time.Time) ([]models.Invitation, error)
}

type invitationRepository struct {
	db *sql.DB
}

func NewInvitationRepository(db *sql.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	query := `
		INSERT INTO invitations (id, token_hash, email, name, role, department, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		inv.ID, inv.TokenHash, inv.Email, inv.Name, inv.Role, inv.Department,
		inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt,
	).Scan(&inv.CreatedAt)
	return err
}

func (r *invitationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Invitation, error) {
	query := `
		SELECT id, token_hash, email, name, role, department, invited_by, expires_at, used_at, created_at
		FROM invitations
		WHERE token_hash = $1
	`

	var inv models.Invitation
	var usedAt sql.NullTime
	var invitedBy sql.NullString
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&inv.ID, &inv.TokenHash, &inv.Email, &inv.Name, &inv.Role, &inv.Department,
		&invitedBy, &inv.ExpiresAt, &usedAt, &inv.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tokens.ErrNotFound
		}
		return nil, err
	}
	inv.InvitedBy = invitedBy.String
	if usedAt.Valid {
		inv.UsedAt = &usedAt.Time
	}
	return &inv, nil
}

// Redeem burns the invitation and materializes the invited account in one
// transaction. newUser supplies the caller-chosen fields (id, name,
// password hash, created_at); email, role and department come from the
// invitation row so an invitee cannot escalate past what was issued.
func (r *invitationRepository) Redeem(ctx context.Context, tokenHash string, usedAt time.Time, newUser *models.User) (*models.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	u := *newUser
	err = tx.QueryRowContext(ctx, `
		UPDATE invitations
		SET used_at = $1
		WHERE token_hash = $2 AND used_at IS NULL AND expires_at > $1
		RETURNING email, role, department
	`, usedAt, tokenHash).Scan(&u.Email, &u.Role, &u.Department)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, r.classify(ctx, tx, tokenHash, usedAt)
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, department, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.Name, u.Role, u.Department, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *invitationRepository) classify(ctx context.Context, tx *sql.Tx, tokenHash string, now time.Time) error {
	var usedAt sql.NullTime
	var expiresAt time.Time
	err := tx.QueryRowContext(ctx, `
		SELECT used_at, expires_at FROM invitations WHERE token_hash = $1
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
	return tokens.ErrAlreadyUsed
}

func (r *invitationRepository) ListSpent(ctx context.Context, now time.Time) ([]models.Invitation, error) {
	query := `
		SELECT id, token_hash, email, name, role, department, invited_by, expires_at, used_at, created_at
		FROM invitations
		WHERE used_at IS NOT NULL OR expires_at <= $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spent []models.Invitation
	for rows.Next() {
		var inv models.Invitation
		var usedAt sql.NullTime
		var invitedBy sql.NullString
		if err := rows.Scan(
			&inv.ID, &inv.TokenHash, &inv.Email, &inv.Name, &inv.Role, &inv.Department,
			&invitedBy, &inv.ExpiresAt, &usedAt, &inv.CreatedAt,
		); err != nil {
			return nil, err
		}
		inv.InvitedBy = invitedBy.String
		if usedAt.Valid {
			inv.UsedAt = &usedAt.Time
		}
		spent = append(spent, inv)
	}
	return spent, rows.Err()
}
