package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jklgtravel/mailer/internal"
	"github.com/jklgtravel/mailer/internal/bootstrap"
	"github.com/jklgtravel/mailer/internal/handler"
	"github.com/jklgtravel/mailer/internal/handler/api"
	"github.com/jklgtravel/mailer/internal/jobs"
	"github.com/jklgtravel/mailer/internal/middleware"
	"github.com/jklgtravel/mailer/internal/notify"
	"github.com/jklgtravel/mailer/internal/postgres"
	"github.com/jklgtravel/mailer/internal/router"
	"github.com/jklgtravel/mailer/internal/routes"
	"github.com/jklgtravel/mailer/internal/supervisor"
	"github.com/jklgtravel/mailer/internal/telemetry"
	"github.com/jklgtravel/mailer/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func run() error {
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	if cfg.Queue.EmbeddedWorker {
		if err := cfg.ValidateWorker(); err != nil {
			return fmt.Errorf("embedded worker configuration invalid: %w", err)
		}
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	flushSentry, err := telemetry.InitSentry(bootstrap.SentryConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer flushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.OpenDatabase(ctx, cfg.DatabaseUrl, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := postgres.NewEmailQueueStore(pool)
	mailMetrics := telemetry.NewMailMetrics("mailer", prometheus.DefaultRegisterer)

	// ==========================================================================
	// Wake-ups (optional)
	// ==========================================================================

	mailerOpts := []jobs.MailerOption{jobs.WithMetrics(mailMetrics)}
	var waker api.Waker
	wake := make(chan struct{}, 1)

	if cfg.NatsURL != "" {
		notifier, err := notify.Connect(cfg.NatsURL, "jklg-mailer-server", logger)
		if err != nil {
			logger.Warn("NATS unavailable, relying on polling only", "error", err)
		} else {
			defer notifier.Close()
			mailerOpts = append(mailerOpts, jobs.WithNotifier(notifier))
			waker = notifier
			if cfg.Queue.EmbeddedWorker {
				unsubscribe, err := notifier.Subscribe(wake)
				if err != nil {
					return err
				}
				defer unsubscribe()
			}
		}
	}

	mailer := jobs.NewMailer(store, logger, mailerOpts...)

	// ==========================================================================
	// Embedded worker
	// ==========================================================================

	var workers sync.WaitGroup
	if cfg.Queue.EmbeddedWorker {
		transport, err := bootstrap.NewTransport(cfg, logger)
		if err != nil {
			return fmt.Errorf("transport initialization failed: %w", err)
		}

		w := worker.NewWorker(store, transport, bootstrap.WorkerConfig(cfg), logger,
			worker.WithMetrics(mailMetrics),
			worker.WithWake(wake),
		)
		sup := supervisor.New("email-worker", cfg.Queue.RestartBackoff, mailMetrics, logger)

		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := sup.Run(ctx, w.Run); err != nil {
				logger.Error("supervisor stopped", "error", err)
			}
		}()
	} else {
		logger.Info("Embedded worker disabled; run cmd/worker separately")
	}

	// ==========================================================================
	// HTTP
	// ==========================================================================

	httpMetrics := middleware.NewMetrics("mailer", prometheus.DefaultRegisterer)

	securityConfig := middleware.DefaultSecurityHeadersConfig()
	if cfg.Env == "dev" {
		securityConfig.HSTSMaxAge = 0
	}

	enqueueLimiter := middleware.NewRateLimiter(middleware.EnqueueRateLimiterConfig())
	defer enqueueLimiter.Stop()

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		middleware.WithClientIP(),
		middleware.WithRequestLogger(logger),
		telemetry.SentryMiddleware(),
		httpMetrics.Middleware,
		middleware.SecurityHeaders(securityConfig),
		router.Logger(logger),
	)

	routes.RegisterAPIRoutes(r, routes.APIDeps{
		EmailHandler: api.NewEmailHandler(mailer, logger),
		EnqueueLimit: enqueueLimiter.Middleware,
		MaxBodyBytes: middleware.DefaultMaxBodySize,
		Health:       api.Health(pool),
		Metrics:      promhttp.Handler(),
	})
	routes.RegisterAdminRoutes(r, routes.AdminDeps{
		EmailHandler: api.NewAdminEmailHandler(store, waker, logger),
		Token:        cfg.AdminToken,
	})
	r.NotFound(handler.NotFoundResponse)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr, "embedded_worker", cfg.Queue.EmbeddedWorker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			workers.Wait()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown incomplete", "error", err)
	}

	workers.Wait()
	logger.Info("Server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
