// internal/config/config.go
package config

import (
	"net/url"
	"os"
	"strconv"
)

// Config carries every environment-sourced setting. It is built once in
// main and handed to the components that need it; nothing reads the
// environment after startup.
type Config struct {
	Port        string
	Environment string
	DatabaseURL string

	FrontendURL string
	SecretKey   string

	TokenExpirationMinutes int

	// Email transport selection: "smtp", "resend" or "ses".
	EmailProvider string

	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromEmail string
	SMTPFromName  string
	SMTPUseTLS    bool

	ResendAPIKey string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	SESFromEmail       string
}

func Load() *Config {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		host := getEnv("PSQL_HOST", "localhost")
		port := getEnv("PSQL_PORT", "5432")
		user := getEnv("PSQL_USER", "postgres")
		password := getEnv("PSQL_PASSWORD", "postgres")
		dbName := getEnv("PSQL_DB_NAME", "passreset")

		u := &url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(user, password),
			Host:   host + ":" + port,
			Path:   dbName,
		}
		q := u.Query()
		q.Set("sslmode", "disable")
		u.RawQuery = q.Encode()
		databaseURL = u.String()
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DatabaseURL: databaseURL,

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:   os.Getenv("SECRET_KEY"),

		TokenExpirationMinutes: getEnvInt("TOKEN_EXPIRATION_MINUTES", 30),

		EmailProvider: getEnv("EMAIL_PROVIDER", "smtp"),

		SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SMTPFromEmail: os.Getenv("SMTP_FROM_EMAIL"),
		SMTPFromName:  getEnv("SMTP_FROM_NAME", "Password Reset Service"),
		SMTPUseTLS:    getEnvBool("SMTP_USE_TLS", false),

		ResendAPIKey: os.Getenv("RESEND_API_KEY"),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SESFromEmail:       os.Getenv("SES_FROM_EMAIL"),
	}
}

// AllowedOrigins returns the CORS origin list: local dev servers, the
// configured frontend, and the hosting platform's wildcard in production.
func (c *Config) AllowedOrigins() []string {
	origins := []string{
		"http://localhost:5173",
		"http://localhost:3000",
	}
	if c.FrontendURL != "" {
		origins = append(origins, c.FrontendURL)
	}
	if c.Environment == "production" {
		origins = append(origins, "https://*.onrender.com")
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
