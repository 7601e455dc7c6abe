package routes

import (
	"database/sql"

	"github.com/go-chi/chi/v5"
	"pulse/internal/config"
	"pulse/internal/handlers"
	"pulse/internal/middleware"
	"pulse/internal/repository"
)

func RegisterInvitationRoutes(router chi.Router, db *sql.DB, cfg *config.Config) {
	invitationHandler := handlers.NewInvitationHandler(
		repository.NewInvitationRepository(db),
		repository.NewUserRepository(db),
		newMailer(cfg),
		cfg,
	)

	router.Route("/invitations", func(r chi.Router) {
		r.Post("/verify", invitationHandler.Verify)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(cfg.JWTSecret))
			r.Post("/", invitationHandler.Create)
		})
	})
}
