package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Auth      AuthConfig
	Postgres  PostgresConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
}

type AppConfig struct {
	Env            string
	HTTPAddr       string
	LogLevel       string
	AllowedOrigins []string
}

// AuthConfig keeps raw values; service.NewAuthService parses and validates them.
type AuthConfig struct {
	JWTSecret                    string
	JWTIssuer                    string
	AccessTokenExpirationMinutes string
	RefreshTokenExpirationDays   string
	MaxFailedAttempts            string
	RecoveryTokenTTL             string
	BcryptCost                   string
	RevokeFamilyOnReuse          string
	SweepInterval                string
	CookieSecure                 string
	CookieSameSite               string
	CookiePath                   string
	CookieDomain                 string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	TLSMode  string
}

type RateLimitConfig struct {
	Driver string
	Max    string
	Window string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       string
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		App: AppConfig{
			Env:            getenv("APP_ENV", "dev"),
			HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
			LogLevel:       getenv("LOG_LEVEL", "info"),
			AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
		Auth: AuthConfig{
			JWTSecret:                    os.Getenv("JWT_SECRET"),
			JWTIssuer:                    getenv("JWT_ISSUER", "tripdesk-backoffice"),
			AccessTokenExpirationMinutes: getenv("AUTH_ACCESS_TOKEN_EXPIRATION_MINUTES", "60"),
			RefreshTokenExpirationDays:   getenv("AUTH_REFRESH_TOKEN_EXPIRATION_DAYS", "7"),
			MaxFailedAttempts:            getenv("AUTH_MAX_FAILED_ATTEMPTS", "5"),
			RecoveryTokenTTL:             getenv("AUTH_RECOVERY_TOKEN_TTL", "1h"),
			BcryptCost:                   getenv("AUTH_BCRYPT_COST", "10"),
			RevokeFamilyOnReuse:          getenv("AUTH_REVOKE_FAMILY_ON_REUSE", "false"),
			SweepInterval:                getenv("AUTH_SWEEP_INTERVAL", "1h"),
			CookieSecure:                 os.Getenv("AUTH_COOKIE_SECURE"),
			CookieSameSite:               os.Getenv("AUTH_COOKIE_SAMESITE"),
			CookiePath:                   os.Getenv("AUTH_COOKIE_PATH"),
			CookieDomain:                 os.Getenv("AUTH_COOKIE_DOMAIN"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getenv("SMTP_PORT", "587"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getenv("SMTP_FROM", "no-reply@tripdesk.local"),
			TLSMode:  getenv("SMTP_TLS_MODE", "auto"),
		},
		RateLimit: RateLimitConfig{
			Driver: getenv("RATE_LIMIT_DRIVER", "memory"),
			Max:    getenv("RATE_LIMIT_MAX", "20"),
			Window: getenv("RATE_LIMIT_WINDOW", "1m"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenv("REDIS_DB", "0"),
		},
	}
}

// IsProduction reports whether diagnostics must be hidden from API responses.
func (c AppConfig) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Env))
	return env == "prod" || env == "production"
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
