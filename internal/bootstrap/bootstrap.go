// Package bootstrap holds the startup wiring shared by cmd/server and cmd/worker.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jklgtravel/mailer/internal"
	"github.com/jklgtravel/mailer/internal/email"
	"github.com/jklgtravel/mailer/internal/telemetry"
	"github.com/jklgtravel/mailer/internal/worker"
)

// OpenDatabase runs pending migrations over database/sql, then returns the
// pgx pool the application uses.
func OpenDatabase(ctx context.Context, databaseURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pool ping failed: %w", err)
	}

	logger.Info("Database ready")
	return pool, nil
}

// NewTransport picks Postmark when a server token is configured and SMTP otherwise.
func NewTransport(cfg *internal.Config, logger *slog.Logger) (email.Transport, error) {
	if cfg.Email.PostmarkToken != "" {
		logger.Info("Using Postmark transport", "from", cfg.Email.From)
		client := &http.Client{
			Timeout:   30 * time.Second,
			Transport: &telemetry.HTTPTransport{Transport: http.DefaultTransport},
		}
		return email.NewPostmarkTransport(cfg.Email.PostmarkToken, cfg.Email.From, cfg.Email.FromName,
			email.WithPostmarkHTTPClient(client)), nil
	}

	logger.Info("Using SMTP transport", "host", cfg.Email.Host, "port", cfg.Email.Port)
	return email.NewSMTPTransport(&email.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     int(cfg.Email.Port),
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		FromName: cfg.Email.FromName,
		Timeout:  30 * time.Second,
	}, logger)
}

// WorkerConfig maps the queue settings onto a worker.Config.
func WorkerConfig(cfg *internal.Config) worker.Config {
	return worker.Config{
		WorkerID:       WorkerID(),
		PollInterval:   cfg.Queue.PollInterval,
		BatchSize:      cfg.Queue.BatchSize,
		SendDelay:      cfg.Queue.SendDelay,
		AbandonTimeout: cfg.Queue.AbandonTimeout,
		SendTimeout:    cfg.Queue.SendTimeout,
		WriteTimeout:   cfg.Queue.WriteTimeout,
	}
}

// WorkerID is "<hostname>-<8 hex>", unique per process.
func WorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.New().String()[:8]
}

// SentryConfig maps the Sentry settings onto the telemetry package.
func SentryConfig(cfg *internal.Config) telemetry.SentryConfig {
	return telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Enabled:     cfg.Sentry.Enabled,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
		Debug:       cfg.Sentry.Debug,
	}
}
