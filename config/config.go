package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	ProjectName string `env:"PROJECT_NAME" envDefault:"backend-skeleton" validate:"required"`
	APIVersion  string `env:"API_VERSION"  envDefault:"1.0"              validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret      string        `env:"JWT_SECRET,required" validate:"required,min=32"`
	JWTTTL         time.Duration `env:"JWT_TTL"          envDefault:"24h" validate:"min=1m"`
	ActionTokenTTL time.Duration `env:"ACTION_TOKEN_TTL" envDefault:"1h"  validate:"min=1m"`
	AppBaseURL     string        `env:"APP_BASE_URL"     envDefault:"http://localhost:8080" validate:"required,url"`

	MailTransport string        `env:"MAIL_TRANSPORT" envDefault:"log" validate:"oneof=log smtp resend"`
	MailFrom      string        `env:"MAIL_FROM"      envDefault:"no-reply@example.com" validate:"required,email"`
	MailFromName  string        `env:"MAIL_FROM_NAME"`
	MailTimeout   time.Duration `env:"MAIL_TIMEOUT"   envDefault:"15s" validate:"min=1s"`

	SMTPHost     string `env:"SMTP_HOST"     envDefault:"smtp.gmail.com" validate:"required_if=MailTransport smtp"`
	SMTPPort     int    `env:"SMTP_PORT"     envDefault:"587"            validate:"min=1,max=65535"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=MailTransport resend"`

	AuthRateLimit        int64    `env:"AUTH_RATE_LIMIT"        envDefault:"10" validate:"min=1"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envDefault:"*"  envSeparator:","`
	TokenCleanupSchedule string   `env:"TOKEN_CLEANUP_SCHEDULE" envDefault:"@every 1h" validate:"required"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.MailFromName == "" {
		cfg.MailFromName = cfg.ProjectName
	}
	cfg.AppBaseURL = strings.TrimSuffix(cfg.AppBaseURL, "/")

	return cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog.Level. Validation guarantees a known value.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
