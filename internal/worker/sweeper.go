package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/jklgtravel/mailer/internal/domain"
	"github.com/jklgtravel/mailer/internal/telemetry"
)

// DefaultAbandonTimeout is how long a record may sit in processing before it
// is assumed to belong to a crashed worker.
const DefaultAbandonTimeout = 5 * time.Minute

// Sweeper returns abandoned processing records to pending.
type Sweeper struct {
	store   domain.EmailQueue
	timeout time.Duration
	metrics *telemetry.MailMetrics
	logger  *slog.Logger
}

// NewSweeper creates a sweeper. A non-positive timeout uses DefaultAbandonTimeout.
func NewSweeper(store domain.EmailQueue, timeout time.Duration, metrics *telemetry.MailMetrics, logger *slog.Logger) *Sweeper {
	if timeout <= 0 {
		timeout = DefaultAbandonTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:   store,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// Sweep resets every processing record older than the timeout and returns how
// many it recovered. A failed reset is logged and the sweep continues; the
// first such error is returned alongside the count.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	abandoned, err := s.store.SelectAbandoned(ctx, s.timeout)
	if err != nil {
		s.metrics.RecordStoreError("select_abandoned")
		return 0, err
	}

	var (
		recovered int
		firstErr  error
	)
	for _, rec := range abandoned {
		err := s.store.ReleaseAbandoned(ctx, rec.ID, s.timeout)
		switch {
		case err == nil:
			recovered++
			s.logger.WarnContext(ctx, "recovered abandoned email",
				"email_id", rec.ID,
				"processing_since", rec.UpdatedAt,
			)
			telemetry.AddBreadcrumb("queue", "recovered abandoned email", map[string]interface{}{
				"email_id": rec.ID.String(),
			})
		case errors.Is(err, domain.ErrEmailNotProcessing):
			// Finished or reclaimed between select and reset.
		default:
			s.metrics.RecordStoreError("release_abandoned")
			s.logger.ErrorContext(ctx, "failed to recover abandoned email",
				"email_id", rec.ID,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.metrics.RecordRecovered(recovered)
	if recovered > 0 {
		// A recovery means a worker died mid-send; the email may go out twice.
		telemetry.CaptureMessage("abandoned emails recovered", sentry.LevelWarning, map[string]interface{}{
			"count": recovered,
		})
	}
	return recovered, firstErr
}
