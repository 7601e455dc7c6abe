package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"pulse/internal/config"
	"pulse/internal/models"
	"pulse/internal/repository"
)

// TokenAuditExport is the JSON document produced by the audit exporter.
// Tokens are never deleted on expiry; this is the read-only retention view.
type TokenAuditExport struct {
	Version     string                  `json:"version"`
	ExportedAt  time.Time               `json:"exported_at"`
	ResetTokens []ResetTokenAuditRecord `json:"password_reset_tokens"`
	Invitations []InvitationAuditRecord `json:"invitations"`
}

type ResetTokenAuditRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type InvitationAuditRecord struct {
	ID        string     `json:"id"`
	TokenHash string     `json:"token_hash"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	InvitedBy string     `json:"invited_by"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type AuditExportService struct {
	resets  repository.PasswordResetRepository
	invites repository.InvitationRepository
}

func NewAuditExportService(resets repository.PasswordResetRepository, invites repository.InvitationRepository) *AuditExportService {
	return &AuditExportService{resets: resets, invites: invites}
}

// Build collects every spent (used or expired) token. Live tokens are
// excluded: they are still redeemable credentials.
func (s *AuditExportService) Build(ctx context.Context, now time.Time) (*TokenAuditExport, error) {
	resets, err := s.resets.ListSpent(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list reset tokens: %w", err)
	}
	invites, err := s.invites.ListSpent(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	export := &TokenAuditExport{
		Version:     "1",
		ExportedAt:  now,
		ResetTokens: make([]ResetTokenAuditRecord, 0, len(resets)),
		Invitations: make([]InvitationAuditRecord, 0, len(invites)),
	}
	for _, t := range resets {
		export.ResetTokens = append(export.ResetTokens, ResetTokenAuditRecord{
			ID:        t.ID,
			UserID:    t.UserID,
			TokenHash: t.TokenHash,
			ExpiresAt: t.ExpiresAt,
			UsedAt:    t.UsedAt,
			CreatedAt: t.CreatedAt,
		})
	}
	for _, inv := range invites {
		export.Invitations = append(export.Invitations, invitationRecord(inv))
	}
	return export, nil
}

func invitationRecord(inv models.Invitation) InvitationAuditRecord {
	return InvitationAuditRecord{
		ID:        inv.ID,
		TokenHash: inv.TokenHash,
		Email:     inv.Email,
		Role:      inv.Role,
		InvitedBy: inv.InvitedBy,
		ExpiresAt: inv.ExpiresAt,
		UsedAt:    inv.UsedAt,
		CreatedAt: inv.CreatedAt,
	}
}

// WriteFile writes the export as indented JSON.
func (s *AuditExportService) WriteFile(export *TokenAuditExport, path string) error {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Upload pushes the export to the audit bucket.
func (s *AuditExportService) Upload(ctx context.Context, s3cfg *config.S3Config, key string, export *TokenAuditExport) error {
	data, err := json.Marshal(export)
	if err != nil {
		return err
	}

	uploader := manager.NewUploader(s3cfg.Client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload audit export: %w", err)
	}
	return nil
}
