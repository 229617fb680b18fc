package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jklgtravel/mailer/internal/domain"
)

// DBTX is the subset of pgx used by the queue store.
// *pgxpool.Pool, *pgx.Conn and pgx.Tx all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EmailQueueStore implements domain.EmailQueueStore on the email_queue table.
// Every status transition is a single UPDATE guarded on the current status,
// so concurrent workers in separate processes coordinate through the database alone.
type EmailQueueStore struct {
	db DBTX
}

// Compile-time check that EmailQueueStore implements domain.EmailQueueStore.
var _ domain.EmailQueueStore = (*EmailQueueStore)(nil)

// NewEmailQueueStore creates a PostgreSQL-backed email queue.
func NewEmailQueueStore(db DBTX) *EmailQueueStore {
	return &EmailQueueStore{db: db}
}

const emailColumns = `id, recipient_email, subject, body, status, created_at, updated_at, sent_at, error_message`

// =============================================================================
// WRITE PATH
// =============================================================================

const insertEmail = `
INSERT INTO email_queue (id, recipient_email, subject, body, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'pending', now(), now())`

// Insert stores a new pending record.
func (s *EmailQueueStore) Insert(ctx context.Context, email domain.NewEmail) (uuid.UUID, error) {
	if err := email.Validate(); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	if _, err := s.db.Exec(ctx, insertEmail, id, email.RecipientEmail, email.Subject, email.Body); err != nil {
		return uuid.Nil, domain.Internal(err, "email_queue.insert", "failed to queue email")
	}
	return id, nil
}

// =============================================================================
// DELIVERY PATH
// =============================================================================

const selectPending = `
SELECT ` + emailColumns + `
FROM email_queue
WHERE status = 'pending'
ORDER BY created_at ASC, id ASC
LIMIT $1`

// SelectPending returns up to limit pending records in FIFO order.
func (s *EmailQueueStore) SelectPending(ctx context.Context, limit int) ([]domain.EmailRecord, error) {
	rows, err := s.db.Query(ctx, selectPending, limit)
	if err != nil {
		return nil, domain.Internal(err, "email_queue.select_pending", "failed to select pending emails")
	}
	return collectEmails(rows, "email_queue.select_pending")
}

const claimEmail = `
UPDATE email_queue
SET status = 'processing', updated_at = now()
WHERE id = $1 AND status = 'pending'`

// TryClaim is the only concurrency primitive: a single conditional UPDATE.
// Exactly one of any number of concurrent callers sees a row affected.
func (s *EmailQueueStore) TryClaim(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, claimEmail, id)
	if err != nil {
		return false, domain.Internal(err, "email_queue.claim", "failed to claim email")
	}
	return tag.RowsAffected() == 1, nil
}

const markSent = `
UPDATE email_queue
SET status = 'sent', sent_at = now(), error_message = NULL, updated_at = now()
WHERE id = $1 AND status = 'processing'`

// MarkSent records a successful delivery.
func (s *EmailQueueStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, "email_queue.mark_sent", markSent, id)
}

const markFailed = `
UPDATE email_queue
SET status = 'failed', error_message = $2, updated_at = now()
WHERE id = $1 AND status = 'processing'`

// MarkFailed records a failed delivery; the previous error message is overwritten.
func (s *EmailQueueStore) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return s.transition(ctx, "email_queue.mark_failed", markFailed, id, message)
}

const markPending = `
UPDATE email_queue
SET status = 'pending', updated_at = now()
WHERE id = $1 AND status = 'processing'`

// MarkPending hands a processing record back to the queue.
func (s *EmailQueueStore) MarkPending(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, "email_queue.mark_pending", markPending, id)
}

const releaseAbandoned = `
UPDATE email_queue
SET status = 'pending', updated_at = now()
WHERE id = $1
  AND status = 'processing'
  AND updated_at < now() - ($2::bigint * interval '1 millisecond')`

// ReleaseAbandoned returns a processing record to pending only if it is still
// older than olderThan. A record reclaimed since it was selected is left alone.
func (s *EmailQueueStore) ReleaseAbandoned(ctx context.Context, id uuid.UUID, olderThan time.Duration) error {
	return s.transition(ctx, "email_queue.release_abandoned", releaseAbandoned, id, olderThan.Milliseconds())
}

func (s *EmailQueueStore) transition(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return domain.Internal(err, op, "failed to update email status")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrEmailNotProcessing)
	}
	return nil
}

const selectAbandoned = `
SELECT ` + emailColumns + `
FROM email_queue
WHERE status = 'processing'
  AND updated_at < now() - ($1::bigint * interval '1 millisecond')
ORDER BY updated_at ASC`

// SelectAbandoned returns processing records that have not been touched for olderThan.
func (s *EmailQueueStore) SelectAbandoned(ctx context.Context, olderThan time.Duration) ([]domain.EmailRecord, error) {
	rows, err := s.db.Query(ctx, selectAbandoned, olderThan.Milliseconds())
	if err != nil {
		return nil, domain.Internal(err, "email_queue.select_abandoned", "failed to select abandoned emails")
	}
	return collectEmails(rows, "email_queue.select_abandoned")
}

// =============================================================================
// OPERATOR PATH
// =============================================================================

const getEmail = `SELECT ` + emailColumns + ` FROM email_queue WHERE id = $1`

// Get returns a single record.
func (s *EmailQueueStore) Get(ctx context.Context, id uuid.UUID) (*domain.EmailRecord, error) {
	rec, err := scanEmail(s.db.QueryRow(ctx, getEmail, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("email_queue.get", "email", id.String())
	}
	if err != nil {
		return nil, domain.Internal(err, "email_queue.get", "failed to load email")
	}
	return &rec, nil
}

const listEmails = `
SELECT ` + emailColumns + `
FROM email_queue
WHERE ($1::text = '' OR status = $1::text)
ORDER BY created_at DESC
LIMIT $2`

// List returns the newest records, optionally filtered by status.
func (s *EmailQueueStore) List(ctx context.Context, status domain.EmailStatus, limit int) ([]domain.EmailRecord, error) {
	rows, err := s.db.Query(ctx, listEmails, string(status), limit)
	if err != nil {
		return nil, domain.Internal(err, "email_queue.list", "failed to list emails")
	}
	return collectEmails(rows, "email_queue.list")
}

const countByStatus = `SELECT status, count(*) FROM email_queue GROUP BY status`

// CountByStatus returns a count for every status, including zeros.
func (s *EmailQueueStore) CountByStatus(ctx context.Context) (map[domain.EmailStatus]int64, error) {
	rows, err := s.db.Query(ctx, countByStatus)
	if err != nil {
		return nil, domain.Internal(err, "email_queue.count", "failed to count emails")
	}
	defer rows.Close()

	counts := make(map[domain.EmailStatus]int64, len(domain.EmailStatuses))
	for _, st := range domain.EmailStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.Internal(err, "email_queue.count", "failed to scan count")
		}
		counts[domain.EmailStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "email_queue.count", "failed to count emails")
	}
	return counts, nil
}

const requeueEmail = `
UPDATE email_queue
SET status = 'pending', error_message = NULL, updated_at = now()
WHERE id = $1 AND status = 'failed'`

// Requeue returns a failed record to pending. Nothing else is ever retried.
func (s *EmailQueueStore) Requeue(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, requeueEmail, id)
	if err != nil {
		return domain.Internal(err, "email_queue.requeue", "failed to requeue email")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return domain.Conflict("email_queue.requeue",
		fmt.Sprintf("only failed emails can be requeued (current status: %s)", rec.Status))
}

// =============================================================================
// Helper Functions
// =============================================================================

func scanEmail(row pgx.Row) (domain.EmailRecord, error) {
	var (
		rec    domain.EmailRecord
		status string
	)
	err := row.Scan(
		&rec.ID,
		&rec.RecipientEmail,
		&rec.Subject,
		&rec.Body,
		&status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.SentAt,
		&rec.ErrorMessage,
	)
	rec.Status = domain.EmailStatus(status)
	return rec, err
}

func collectEmails(rows pgx.Rows, op string) ([]domain.EmailRecord, error) {
	defer rows.Close()

	var out []domain.EmailRecord
	for rows.Next() {
		rec, err := scanEmail(rows)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to scan email")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read emails")
	}
	return out, nil
}
