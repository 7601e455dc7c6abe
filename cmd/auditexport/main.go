// Command auditexport snapshots every spent (used or expired) token for
// retention. Spent tokens are never deleted from the database; this tool
// produces the periodic audit view, optionally pushing it to S3.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"pulse/internal/config"
	"pulse/internal/db"
	"pulse/internal/repository"
	"pulse/internal/services"
)

func main() {
	output := flag.String("output", "", "Output file path (default: token_audit_YYYYMMDD_HHMMSS.json)")
	upload := flag.Bool("upload", false, "Also upload the export to the configured S3 audit bucket")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall deadline for the export")
	flag.Parse()

	cfg := config.Load()

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	svc := services.NewAuditExportService(
		repository.NewPasswordResetRepository(database.DB),
		repository.NewInvitationRepository(database.DB),
	)

	now := time.Now().UTC()
	export, err := svc.Build(ctx, now)
	if err != nil {
		log.Fatalf("Failed to build export: %v", err)
	}

	path := *output
	if path == "" {
		path = fmt.Sprintf("token_audit_%s.json", now.Format("20060102_150405"))
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	if err := svc.WriteFile(export, path); err != nil {
		log.Fatalf("Failed to write export: %v", err)
	}
	log.Printf("Wrote %s: %d reset tokens, %d invitations",
		path, len(export.ResetTokens), len(export.Invitations))

	if *upload {
		s3cfg, err := config.LoadS3Config(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to load S3 config: %v", err)
		}
		key := fmt.Sprintf("token-audit/%s.json", now.Format("2006/01/02/150405"))
		if err := svc.Upload(ctx, s3cfg, key, export); err != nil {
			log.Fatalf("Failed to upload export: %v", err)
		}
		log.Printf("Uploaded export to s3://%s/%s", s3cfg.Bucket, key)
	}
}
