// internal/routes/routes.go
package routes

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"pulse/internal/config"
)

func SetupRoutes(db *sql.DB, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AppBaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "pulse api", "env": cfg.Environment})
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		resp := map[string]any{"status": "ok", "db": map[string]any{"status": "ok"}}
		status := http.StatusOK
		if err := db.PingContext(req.Context()); err != nil {
			resp["status"] = "degraded"
			resp["db"] = map[string]any{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		RegisterAuthRoutes(r, db, cfg)
		RegisterInvitationRoutes(r, db, cfg)
		RegisterUserRoutes(r, db, cfg)
	})

	RegisterSwaggerRoutes(r)

	return r
}
