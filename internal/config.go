package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	LogLevel    string
	Port        uint16
	DatabaseUrl string
	SiteURL     string
	BrandName   string
	AdminToken  string // Bearer token guarding /api/admin routes
	NatsURL     string // Optional; enables enqueue wake-ups
	MetricsAddr string // Standalone worker only; empty disables its /metrics listener
	Email       EmailConfig
	Queue       QueueConfig
	Sentry      SentryConfig
}

type EmailConfig struct {
	Host          string
	Port          uint16
	Username      string
	Password      string
	From          string
	FromName      string
	PostmarkToken string
}

// QueueConfig controls the delivery worker loop.
type QueueConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	SendDelay      time.Duration
	AbandonTimeout time.Duration

	// SendTimeout bounds one transport call; WriteTimeout bounds each outcome write.
	// A record is busy for at most their sum, so AbandonTimeout must exceed it.
	SendTimeout  time.Duration
	WriteTimeout time.Duration

	// EmbeddedWorker runs a supervised worker inside the API server process.
	EmbeddedWorker bool

	// RestartBackoff is the fixed wait before the supervisor restarts a crashed worker.
	RestartBackoff time.Duration
}

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN         string
	Enabled     bool
	Environment string
	Release     string
	SampleRate  float64
	Debug       bool
}

// ErrMissingConfig is wrapped by ValidateWorker for every absent required key.
var ErrMissingConfig = errors.New("missing required configuration")

func NewConfig() (*Config, error) {
	// Try to load .env from current directory, then walk up to find it (max 2 levels)
	err := godotenv.Load()
	if err != nil {
		dir, _ := os.Getwd()
		found := false
		for i := 0; i < 2; i++ {
			dir = filepath.Join(dir, "..")
			if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
				found = true
				break
			}
		}
		if !found {
			slog.Default().Warn("Warning: .env file not found, using environment variables and defaults")
		}
	}

	cfg := &Config{
		Env:         getEnv("ENV", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Port:        getEnvInt("PORT", 5000),
		DatabaseUrl: getEnv("DATABASE_URL", ""),
		SiteURL:     getEnv("SITE_URL", "http://localhost:5173"),
		BrandName:   getEnv("BRAND_NAME", "JKLG Travel"),
		AdminToken:  getEnv("ADMIN_API_TOKEN", ""),
		NatsURL:     getEnv("NATS_URL", ""),
		MetricsAddr: getEnv("WORKER_METRICS_ADDR", ""),
		Email: EmailConfig{
			Host:          getEnv("SMTP_HOST", ""),
			Port:          getEnvInt("SMTP_PORT", 587),
			Username:      getEnv("SMTP_USER", ""),
			Password:      getEnv("SMTP_PASSWORD", ""),
			From:          getEnv("SMTP_FROM", ""),
			FromName:      getEnv("EMAIL_FROM_NAME", "JKLG Travel"),
			PostmarkToken: getEnv("POSTMARK_API_TOKEN", ""),
		},
		Queue: QueueConfig{
			PollInterval:   getEnvDuration("MAIL_POLL_INTERVAL", 30*time.Second),
			BatchSize:      getEnvPositiveInt("MAIL_BATCH_SIZE", 10),
			SendDelay:      getEnvDuration("MAIL_SEND_DELAY", time.Second),
			AbandonTimeout: getEnvDuration("MAIL_ABANDON_TIMEOUT", 5*time.Minute),
			SendTimeout:    getEnvDuration("MAIL_SEND_TIMEOUT", 60*time.Second),
			WriteTimeout:   getEnvDuration("MAIL_WRITE_TIMEOUT", 10*time.Second),
			EmbeddedWorker: getEnvBool("MAIL_EMBEDDED_WORKER", true),
			RestartBackoff: getEnvDuration("MAIL_RESTART_BACKOFF", 5*time.Second),
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Enabled:     getEnvBool("SENTRY_ENABLED", false),
			Environment: getEnv("SENTRY_ENVIRONMENT", "development"),
			Release:     getEnv("SENTRY_RELEASE", ""),
			SampleRate:  getEnvFloat("SENTRY_SAMPLE_RATE", 1.0),
			Debug:       getEnvBool("SENTRY_DEBUG", false),
		},
	}

	// Validate env
	validEnv := cfg.Env == "dev" || cfg.Env == "prod"
	if !validEnv {
		slog.Default().Warn("Invalid environment. Using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	// Validate log level
	validLevel := cfg.LogLevel == "info" || cfg.LogLevel == "debug" || cfg.LogLevel == "warn" || cfg.LogLevel == "error"
	if !validLevel {
		slog.Default().Warn("Invalid log level. Using default: info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL", ErrMissingConfig)
	}

	if cfg.Env == "prod" && cfg.AdminToken == "" {
		slog.Default().Warn("ADMIN_API_TOKEN not set; admin email routes are disabled")
	}

	return cfg, nil
}

// ValidateWorker checks the settings a delivery worker cannot start without.
// Either SMTP host+from or a Postmark token must be present.
func (c *Config) ValidateWorker() error {
	var missing []error
	if c.Email.PostmarkToken == "" {
		if c.Email.Host == "" {
			missing = append(missing, fmt.Errorf("%w: SMTP_HOST", ErrMissingConfig))
		}
		if c.Email.From == "" {
			missing = append(missing, fmt.Errorf("%w: SMTP_FROM", ErrMissingConfig))
		}
	} else if c.Email.From == "" {
		missing = append(missing, fmt.Errorf("%w: SMTP_FROM", ErrMissingConfig))
	}
	if c.Queue.PollInterval <= 0 {
		missing = append(missing, fmt.Errorf("MAIL_POLL_INTERVAL must be positive"))
	}
	if c.Queue.SendTimeout <= 0 || c.Queue.WriteTimeout <= 0 {
		missing = append(missing, fmt.Errorf("MAIL_SEND_TIMEOUT and MAIL_WRITE_TIMEOUT must be positive"))
	} else if busy := c.Queue.SendTimeout + c.Queue.WriteTimeout; c.Queue.AbandonTimeout <= busy {
		missing = append(missing, fmt.Errorf("MAIL_ABANDON_TIMEOUT (%s) must exceed MAIL_SEND_TIMEOUT + MAIL_WRITE_TIMEOUT (%s)",
			c.Queue.AbandonTimeout, busy))
	}
	return errors.Join(missing...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue uint16) uint16 {
	if value := os.Getenv(key); value != "" {
		var intValue uint16
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvPositiveInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
		slog.Default().Warn("Invalid integer, using default", slog.String("key", key), slog.Int("default", defaultValue))
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var floatValue float64
		if _, err := fmt.Sscanf(value, "%f", &floatValue); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Default().Warn("Invalid duration, using default", slog.String("key", key), slog.Duration("default", defaultValue))
	}
	return defaultValue
}
