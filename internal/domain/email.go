package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmailStatus is the delivery state of a queued email.
//
// Allowed transitions:
//
//	pending    -> processing  (claim, conditional on pending)
//	processing -> sent        (delivery succeeded)
//	processing -> failed      (delivery failed)
//	processing -> pending     (abandoned past the sweep timeout)
//	failed     -> pending     (operator requeue)
type EmailStatus string

const (
	EmailStatusPending    EmailStatus = "pending"
	EmailStatusProcessing EmailStatus = "processing"
	EmailStatusSent       EmailStatus = "sent"
	EmailStatusFailed     EmailStatus = "failed"
)

// EmailStatuses lists every status in lifecycle order.
var EmailStatuses = []EmailStatus{
	EmailStatusPending,
	EmailStatusProcessing,
	EmailStatusSent,
	EmailStatusFailed,
}

// Valid reports whether s is one of the four known statuses.
func (s EmailStatus) Valid() bool {
	switch s {
	case EmailStatusPending, EmailStatusProcessing, EmailStatusSent, EmailStatusFailed:
		return true
	}
	return false
}

// ParseEmailStatus converts a query-string value into an EmailStatus.
func ParseEmailStatus(raw string) (EmailStatus, error) {
	s := EmailStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", Errorf(EINVALID, "email_status.parse", "unknown email status %q", raw)
	}
	return s, nil
}

// EmailRecord is one row of the outbound email queue.
// SentAt is set only together with EmailStatusSent; ErrorMessage only with EmailStatusFailed.
type EmailRecord struct {
	ID             uuid.UUID   `json:"id"`
	RecipientEmail string      `json:"recipient_email"`
	Subject        string      `json:"subject"`
	Body           string      `json:"body"`
	Status         EmailStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	SentAt         *time.Time  `json:"sent_at,omitempty"`
	ErrorMessage   *string     `json:"error_message,omitempty"`
}

// NewEmail is the caller-supplied part of a record; the store assigns
// the id, status and timestamps.
type NewEmail struct {
	RecipientEmail string
	Subject        string
	Body           string
}

// Validate checks the required fields.
func (e NewEmail) Validate() error {
	var err error
	if strings.TrimSpace(e.RecipientEmail) == "" {
		err = AddFieldError(err, "recipient_email", "recipient email is required")
	}
	if strings.TrimSpace(e.Subject) == "" {
		err = AddFieldError(err, "subject", "subject is required")
	}
	if strings.TrimSpace(e.Body) == "" {
		err = AddFieldError(err, "body", "body is required")
	}
	if err != nil {
		err.(*ValidationError).Op = "email_queue.insert"
	}
	return err
}

// EmailEnqueuer is the write path used by request handlers.
type EmailEnqueuer interface {
	// Insert stores a new pending record and returns its id.
	Insert(ctx context.Context, email NewEmail) (uuid.UUID, error)
}

// EmailQueue is the subset of the store the delivery worker and sweeper use.
type EmailQueue interface {
	// SelectPending returns at most limit pending records, oldest first.
	SelectPending(ctx context.Context, limit int) ([]EmailRecord, error)

	// TryClaim moves a record from pending to processing in one conditional
	// update. It returns false when another worker won the record.
	TryClaim(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkSent moves a processing record to sent and stamps sent_at.
	MarkSent(ctx context.Context, id uuid.UUID) error

	// MarkFailed moves a processing record to failed and overwrites error_message.
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error

	// MarkPending returns a processing record to pending.
	MarkPending(ctx context.Context, id uuid.UUID) error

	// ReleaseAbandoned is MarkPending for the sweeper: it also requires that
	// updated_at is still older than now-olderThan.
	ReleaseAbandoned(ctx context.Context, id uuid.UUID, olderThan time.Duration) error

	// SelectAbandoned returns processing records whose updated_at is older than now-olderThan.
	SelectAbandoned(ctx context.Context, olderThan time.Duration) ([]EmailRecord, error)
}

// EmailQueueAdmin is the operator-facing part of the store.
type EmailQueueAdmin interface {
	Get(ctx context.Context, id uuid.UUID) (*EmailRecord, error)
	List(ctx context.Context, status EmailStatus, limit int) ([]EmailRecord, error)
	CountByStatus(ctx context.Context) (map[EmailStatus]int64, error)

	// Requeue moves a failed record back to pending and clears its error.
	Requeue(ctx context.Context, id uuid.UUID) error
}

// EmailQueueStore is the full persisted queue.
type EmailQueueStore interface {
	EmailEnqueuer
	EmailQueue
	EmailQueueAdmin
}

// ErrEmailNotProcessing is returned by the Mark* transitions when the record
// has already left the processing state (e.g. a sweeper or another worker moved it).
var ErrEmailNotProcessing = &Error{
	Code:    ECONFLICT,
	Message: "email is no longer processing",
}
