// Package worker delivers queued email. Each cycle sweeps abandoned records,
// then claims and sends a bounded batch of pending ones. Workers in separate
// processes coordinate only through the queue store's conditional claim.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jklgtravel/mailer/internal/domain"
	"github.com/jklgtravel/mailer/internal/email"
	"github.com/jklgtravel/mailer/internal/telemetry"
)

// Config holds worker configuration
type Config struct {
	// WorkerID identifies this worker instance in logs
	WorkerID string

	// PollInterval is the wait between cycles
	PollInterval time.Duration

	// BatchSize caps the pending records selected per cycle
	BatchSize int

	// SendDelay is the pause between consecutive sends within a cycle
	SendDelay time.Duration

	// AbandonTimeout is the processing age after which the sweeper resets a record
	AbandonTimeout time.Duration

	// SendTimeout bounds a single transport call
	SendTimeout time.Duration

	// WriteTimeout bounds each outcome write. Outcome writes survive
	// cancellation of the worker context.
	WriteTimeout time.Duration

	// DepthInterval is the minimum gap between queue depth counts
	DepthInterval time.Duration
}

// CycleResult summarizes one delivery cycle.
type CycleResult struct {
	Recovered   int // abandoned records reset to pending
	Selected    int // pending records in the batch
	Claimed     int // records this worker won
	Sent        int
	Failed      int
	Released    int // claimed records handed back on shutdown
	StoreErrors int
}

// Worker runs the delivery loop.
type Worker struct {
	config    Config
	store     domain.EmailQueue
	transport email.Transport
	sweeper   *Sweeper
	metrics   *telemetry.MailMetrics
	wake      <-chan struct{}
	logger    *slog.Logger

	lastDepth time.Time
}

// Option configures a Worker.
type Option func(*Worker)

// WithMetrics records cycle and delivery metrics.
func WithMetrics(m *telemetry.MailMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithWake lets a receive on wake cut the poll wait short.
func WithWake(wake <-chan struct{}) Option {
	return func(w *Worker) { w.wake = wake }
}

// NewWorker creates a delivery worker
func NewWorker(store domain.EmailQueue, transport email.Transport, config Config, logger *slog.Logger, opts ...Option) *Worker {
	// Set defaults
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("mail-worker-%s", uuid.New().String()[:8])
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.SendDelay < 0 {
		config.SendDelay = 0
	}
	if config.AbandonTimeout <= 0 {
		config.AbandonTimeout = DefaultAbandonTimeout
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 60 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.DepthInterval <= 0 {
		config.DepthInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		config:    config,
		store:     store,
		transport: transport,
		logger:    logger.With("worker_id", config.WorkerID),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.sweeper = NewSweeper(store, config.AbandonTimeout, w.metrics, w.logger)

	return w
}

// Run verifies the transport once and then polls until ctx is cancelled.
// A failed verification returns before any record is touched.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.transport.Verify(ctx); err != nil {
		return fmt.Errorf("transport verification failed: %w", err)
	}
	return w.Start(ctx)
}

// Start begins processing until the context is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker starting",
		"poll_interval", w.config.PollInterval,
		"batch_size", w.config.BatchSize,
		"send_delay", w.config.SendDelay,
		"abandon_timeout", w.config.AbandonTimeout,
	)

	for {
		res := w.RunCycle(ctx)
		if res.Claimed > 0 || res.Recovered > 0 || res.StoreErrors > 0 {
			w.logger.Info("cycle complete",
				"recovered", res.Recovered,
				"selected", res.Selected,
				"claimed", res.Claimed,
				"sent", res.Sent,
				"failed", res.Failed,
				"store_errors", res.StoreErrors,
			)
		}

		if !wait(ctx, w.config.PollInterval, w.wake) {
			w.logger.Info("worker shutting down")
			return ctx.Err()
		}
	}
}

// RunCycle performs one sweep plus one batch. Store failures are logged and
// counted; they never abort the loop.
func (w *Worker) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	defer func() { w.metrics.RecordCycle(time.Since(start)) }()

	var res CycleResult

	recovered, err := w.sweeper.Sweep(ctx)
	res.Recovered = recovered
	if err != nil {
		res.StoreErrors++
		w.logger.ErrorContext(ctx, "sweep failed", "error", err)
	}

	batch, err := w.store.SelectPending(ctx, w.config.BatchSize)
	if err != nil {
		res.StoreErrors++
		w.metrics.RecordStoreError("select_pending")
		w.logger.ErrorContext(ctx, "failed to select pending emails", "error", err)
		return res
	}
	res.Selected = len(batch)

	attempted := false
	for _, rec := range batch {
		if ctx.Err() != nil {
			break
		}
		if attempted && !wait(ctx, w.config.SendDelay, nil) {
			break
		}
		attempted = w.deliver(ctx, rec, &res)
	}

	w.publishDepth(ctx)
	return res
}

// deliver claims and sends one record. It reports whether a send was attempted.
func (w *Worker) deliver(ctx context.Context, rec domain.EmailRecord, res *CycleResult) bool {
	logger := w.logger.With("email_id", rec.ID)

	claimed, err := w.store.TryClaim(ctx, rec.ID)
	if err != nil {
		res.StoreErrors++
		w.metrics.RecordStoreError("claim")
		logger.ErrorContext(ctx, "failed to claim email", "error", err)
		return false
	}
	if !claimed {
		w.metrics.RecordClaimLost()
		logger.DebugContext(ctx, "email claimed by another worker")
		return false
	}
	res.Claimed++

	msg := email.Message{
		To:      rec.RecipientEmail,
		Subject: rec.Subject,
		HTML:    rec.Body,
		Text:    email.PlainText(rec.Body),
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, w.config.SendTimeout)
	sendCtx, finishSpan := telemetry.StartSpan(sendCtx, "mail.send", rec.ID.String())
	started := time.Now()
	sent, sendErr := w.transport.Send(sendCtx, msg)
	elapsed := time.Since(started)
	finishSpan()
	cancelSend()

	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), w.config.WriteTimeout)
	defer cancelWrite()

	switch {
	case sendErr == nil:
		w.metrics.RecordDelivery("sent", elapsed)
		if err := w.store.MarkSent(writeCtx, rec.ID); err != nil {
			w.recordWriteFailure(ctx, logger, rec.ID, "mark_sent", err, res)
			return true
		}
		res.Sent++
		logger.InfoContext(ctx, "email sent",
			"message_id", sent.MessageID,
			"duration", elapsed,
		)

	case ctx.Err() != nil:
		// Shutdown interrupted the send; hand the record back instead of failing it.
		if err := w.store.MarkPending(writeCtx, rec.ID); err != nil {
			w.recordWriteFailure(ctx, logger, rec.ID, "mark_pending", err, res)
			return true
		}
		res.Released++
		logger.WarnContext(ctx, "send interrupted by shutdown, email released", "error", sendErr)

	default:
		w.metrics.RecordDelivery("failed", elapsed)
		if err := w.store.MarkFailed(writeCtx, rec.ID, sendErr.Error()); err != nil {
			w.recordWriteFailure(ctx, logger, rec.ID, "mark_failed", err, res)
			return true
		}
		res.Failed++
		logger.WarnContext(ctx, "email delivery failed", "error", sendErr)
		telemetry.CaptureDeliveryFailure(sendErr, rec.ID.String(), "send")
	}

	return true
}

// recordWriteFailure handles an outcome that could not be persisted. The record
// stays in processing until the sweeper recovers it.
func (w *Worker) recordWriteFailure(ctx context.Context, logger *slog.Logger, id uuid.UUID, op string, err error, res *CycleResult) {
	res.StoreErrors++
	w.metrics.RecordStoreError(op)

	if errors.Is(err, domain.ErrEmailNotProcessing) {
		logger.WarnContext(ctx, "email left processing before its outcome was recorded", "op", op)
		return
	}

	logger.ErrorContext(ctx, "failed to record delivery outcome", "op", op, "error", err)
	telemetry.CaptureDeliveryFailure(err, id.String(), op)
}

// publishDepth refreshes the queue depth gauge when the store can count,
// at most once per DepthInterval.
func (w *Worker) publishDepth(ctx context.Context) {
	if w.metrics == nil || time.Since(w.lastDepth) < w.config.DepthInterval {
		return
	}
	counter, ok := w.store.(interface {
		CountByStatus(ctx context.Context) (map[domain.EmailStatus]int64, error)
	})
	if !ok {
		return
	}
	w.lastDepth = time.Now()
	counts, err := counter.CountByStatus(ctx)
	if err != nil {
		w.logger.DebugContext(ctx, "failed to count emails", "error", err)
		return
	}
	w.metrics.SetQueueDepth(counts)
}

// wait sleeps for d, returning early on a wake-up. It returns false once ctx is done.
func wait(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	case <-wake:
		return true
	}
}
