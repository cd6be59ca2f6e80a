package routes

import (
	"database/sql"
	"time"

	"github.com/go-chi/chi/v5"

	"passreset/internal/config"
	"passreset/internal/handlers"
	"passreset/internal/security"
	"passreset/internal/services"
)

func RegisterAuthRoutes(router chi.Router, db *sql.DB, cfg *config.Config, mailer services.EmailSender) {
	auth := services.NewAuthService(
		db,
		security.NewBcryptHasher(0),
		security.NewResetTokenGenerator(),
		mailer,
		cfg.FrontendURL,
		time.Duration(cfg.TokenExpirationMinutes)*time.Minute,
	)
	authHandler := handlers.NewAuthHandler(auth)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Get("/validate-token/{token}", authHandler.ValidateToken)
		r.Post("/reset-password", authHandler.ResetPassword)
	})
}
