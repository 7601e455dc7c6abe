package services

import (
	"context"
	"log"
)

// EmailSender is the outbound notification sink. Delivery failures are the
// caller's to log; they never affect issued tokens.
type EmailSender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// LogSender logs instead of delivering. Used when no provider is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to string, subject string, body string) error {
	log.Printf("email (not configured): to=%s subject=%q", to, subject)
	return nil
}
