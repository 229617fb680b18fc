package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jklgtravel/mailer/internal/domain"
	"github.com/jklgtravel/mailer/internal/handler"
	"github.com/jklgtravel/mailer/internal/middleware"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Waker is told when a record becomes pending again so idle workers run early.
type Waker interface {
	NotifyEnqueued(ctx context.Context, id uuid.UUID) error
}

// AdminEmailHandler lets operators inspect the queue and requeue failures.
type AdminEmailHandler struct {
	store  domain.EmailQueueAdmin
	waker  Waker
	logger *slog.Logger
}

// NewAdminEmailHandler creates the operator handler. waker may be nil.
func NewAdminEmailHandler(store domain.EmailQueueAdmin, waker Waker, logger *slog.Logger) *AdminEmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminEmailHandler{
		store:  store,
		waker:  waker,
		logger: logger,
	}
}

// emailSummary is a record without its body, for list views.
type emailSummary struct {
	ID             uuid.UUID          `json:"id"`
	RecipientEmail string             `json:"recipient_email"`
	Subject        string             `json:"subject"`
	Status         domain.EmailStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
	ErrorMessage   *string            `json:"error_message,omitempty"`
}

func summarize(rec domain.EmailRecord) emailSummary {
	return emailSummary{
		ID:             rec.ID,
		RecipientEmail: rec.RecipientEmail,
		Subject:        rec.Subject,
		Status:         rec.Status,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		SentAt:         rec.SentAt,
		ErrorMessage:   rec.ErrorMessage,
	}
}

// List handles GET /api/admin/emails?status=failed&limit=50
func (h *AdminEmailHandler) List(w http.ResponseWriter, r *http.Request) {
	const op = "admin.emails.list"

	var (
		status  domain.EmailStatus
		limit   = defaultListLimit
		invalid error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := domain.ParseEmailStatus(raw)
		if err != nil {
			invalid = domain.AddFieldError(invalid, "status", "must be one of pending, processing, sent, failed")
		}
		status = parsed
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			invalid = domain.AddFieldError(invalid, "limit", "must be a positive integer")
		}
		limit = min(n, maxListLimit)
	}
	if invalid != nil {
		invalid.(*domain.ValidationError).Op = op
		handler.ValidationErrorResponse(w, r, invalid)
		return
	}

	records, err := h.store.List(r.Context(), status, limit)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	emails := make([]emailSummary, 0, len(records))
	for _, rec := range records {
		emails = append(emails, summarize(rec))
	}

	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"emails": emails,
		"count":  len(emails),
	})
}

// Get handles GET /api/admin/emails/{id}
func (h *AdminEmailHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseEmailID(r, "admin.emails.get")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, rec)
}

// Stats handles GET /api/admin/emails/stats
func (h *AdminEmailHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByStatus(r.Context())
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"counts": counts,
		"total":  total,
	})
}

// Requeue handles POST /api/admin/emails/{id}/requeue
// Only failed records qualify; anything else is a 409.
func (h *AdminEmailHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	id, err := parseEmailID(r, "admin.emails.requeue")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	if err := h.store.Requeue(r.Context(), id); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	logger := middleware.GetLogger(r.Context(), h.logger)
	logger.Info("email requeued", "email_id", id)

	if h.waker != nil {
		if err := h.waker.NotifyEnqueued(r.Context(), id); err != nil {
			logger.Warn("failed to publish wake-up", "email_id", id, "error", err)
		}
	}

	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"status": domain.EmailStatusPending,
	})
}

func parseEmailID(r *http.Request, op string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.Invalid(op, "email id must be a UUID")
	}
	return id, nil
}
