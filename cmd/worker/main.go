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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jklgtravel/mailer/internal"
	"github.com/jklgtravel/mailer/internal/bootstrap"
	"github.com/jklgtravel/mailer/internal/notify"
	"github.com/jklgtravel/mailer/internal/postgres"
	"github.com/jklgtravel/mailer/internal/telemetry"
	"github.com/jklgtravel/mailer/internal/worker"
)

// run starts a standalone delivery worker. It is not restarted on failure;
// the process manager owns restarts, so every fatal condition exits non-zero.
func run() error {
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("worker configuration invalid: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel).With("process", "worker")
	slog.SetDefault(logger)

	flushSentry, err := telemetry.InitSentry(bootstrap.SentryConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer flushSentry()
	defer telemetry.RecoverWithSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.OpenDatabase(ctx, cfg.DatabaseUrl, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	transport, err := bootstrap.NewTransport(cfg, logger)
	if err != nil {
		return fmt.Errorf("transport initialization failed: %w", err)
	}

	metrics := telemetry.NewMailMetrics("mailer", prometheus.DefaultRegisterer)
	opts := []worker.Option{worker.WithMetrics(metrics)}

	if cfg.NatsURL != "" {
		notifier, err := notify.Connect(cfg.NatsURL, "jklg-mailer-worker", logger)
		if err != nil {
			logger.Warn("NATS unavailable, relying on polling only", "error", err)
		} else {
			defer notifier.Close()
			wake := make(chan struct{}, 1)
			unsubscribe, err := notifier.Subscribe(wake)
			if err != nil {
				return err
			}
			defer unsubscribe()
			opts = append(opts, worker.WithWake(wake))
		}
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Serving worker metrics", "address", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	w := worker.NewWorker(postgres.NewEmailQueueStore(pool), transport, bootstrap.WorkerConfig(cfg), logger, opts...)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		telemetry.CaptureError(err, map[string]interface{}{"process": "worker"})
		return fmt.Errorf("worker stopped: %w", err)
	}

	logger.Info("Worker shut down cleanly")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
