// internal/routes/routes.go
package routes

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"passreset/internal/config"
	"passreset/internal/services"
)

func SetupRoutes(db *sql.DB, cfg *config.Config, mailer services.EmailSender) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "Password Reset API",
			"version": "1.0.0",
			"docs":    "/api/docs",
		})
	})

	r.Get("/health", healthHandler(db))

	// API routes
	r.Route("/api", func(r chi.Router) {
		RegisterAuthRoutes(r, db, cfg, mailer)
	})

	RegisterSwaggerRoutes(r)

	return r
}

type healthResponse struct {
	Status string `json:"status"`
	DB     struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	} `json:"db"`
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp healthResponse
		resp.Status = "healthy"
		resp.DB.Status = "ok"

		status := http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.DB.Status = "down"
			resp.DB.Error = err.Error()
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
