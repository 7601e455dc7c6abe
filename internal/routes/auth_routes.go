package routes

import (
	"context"
	"database/sql"
	"log"

	"github.com/go-chi/chi/v5"
	"pulse/internal/config"
	"pulse/internal/handlers"
	"pulse/internal/middleware"
	"pulse/internal/repository"
	"pulse/internal/services"
)

func newMailer(cfg *config.Config) services.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		sender, err := services.NewSESSender(context.Background(), cfg.AWSRegion, cfg.EmailFrom, cfg.EmailFromName)
		if err != nil {
			log.Printf("SES mailer unavailable, falling back to log sender: %v", err)
			return services.LogSender{}
		}
		return sender
	case "smtp":
		return &services.SMTPSender{
			Host:   cfg.SMTPHost,
			Port:   cfg.SMTPPort,
			User:   cfg.SMTPUser,
			Pass:   cfg.SMTPPassword,
			From:   cfg.EmailFrom,
			UseTLS: cfg.SMTPUseTLS,
		}
	default:
		return services.LogSender{}
	}
}

func RegisterAuthRoutes(router chi.Router, db *sql.DB, cfg *config.Config) {
	authHandler := handlers.NewAuthHandler(
		repository.NewUserRepository(db),
		repository.NewPasswordResetRepository(db),
		repository.NewInvitationRepository(db),
		newMailer(cfg),
		cfg,
	)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/signup", authHandler.Signup)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(cfg.JWTSecret))
			r.Get("/session", authHandler.Session)
			r.Post("/refresh", authHandler.Refresh)
		})
	})
}
