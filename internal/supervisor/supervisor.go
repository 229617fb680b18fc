// Package supervisor restarts a long-running function whenever it returns
// before its context is cancelled.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jklgtravel/mailer/internal/telemetry"
)

// DefaultBackoff is the fixed wait between restarts.
const DefaultBackoff = 5 * time.Second

// Func is a supervised unit of work. It should block until ctx is done.
type Func func(ctx context.Context) error

// Supervisor runs a Func and restarts it on exit or panic.
type Supervisor struct {
	name    string
	backoff time.Duration
	metrics *telemetry.MailMetrics
	logger  *slog.Logger
}

// New creates a supervisor. A non-positive backoff uses DefaultBackoff.
func New(name string, backoff time.Duration, metrics *telemetry.MailMetrics, logger *slog.Logger) *Supervisor {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		name:    name,
		backoff: backoff,
		metrics: metrics,
		logger:  logger.With("supervised", name),
	}
}

// Run calls fn until ctx is cancelled, waiting the backoff between attempts.
// It returns nil once ctx is done.
func (s *Supervisor) Run(ctx context.Context, fn Func) error {
	for attempt := 1; ; attempt++ {
		err := s.runOnce(ctx, fn)
		if ctx.Err() != nil {
			s.logger.Info("supervisor stopping", "attempts", attempt)
			return nil
		}

		s.metrics.RecordRestart(s.name)
		s.logger.Error("supervised worker exited, restarting",
			"attempt", attempt,
			"backoff", s.backoff,
			"error", err,
		)
		telemetry.CaptureError(fmt.Errorf("%s exited: %w", s.name, err), map[string]interface{}{
			"attempt": attempt,
		})

		t := time.NewTimer(s.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			s.logger.Info("supervisor stopping", "attempts", attempt)
			return nil
		case <-t.C:
		}
	}
}

// runOnce converts a panic in fn into an error so the loop can restart it.
func (s *Supervisor) runOnce(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("supervised worker panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	return fmt.Errorf("returned without error")
}
