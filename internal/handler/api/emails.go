package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jklgtravel/mailer/internal/domain"
	"github.com/jklgtravel/mailer/internal/handler"
	"github.com/jklgtravel/mailer/internal/jobs"
	"github.com/jklgtravel/mailer/internal/middleware"
)

// Enqueuer is the part of jobs.Mailer the HTTP enqueue endpoint needs.
type Enqueuer interface {
	Send(ctx context.Context, opts jobs.SendOptions) jobs.SendResult
}

// EmailHandler exposes the enqueue operation to other internal services.
type EmailHandler struct {
	mailer Enqueuer
	logger *slog.Logger
}

// NewEmailHandler creates a new enqueue handler
func NewEmailHandler(mailer Enqueuer, logger *slog.Logger) *EmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailHandler{
		mailer: mailer,
		logger: logger,
	}
}

// Enqueue handles POST /api/emails
//
// Body: {"to", "subject"?, "template"?, "data"?, "html"?}
//
// Response codes:
//   - 202 Accepted: a pending record exists; delivery happens later
//   - 400 Bad Request: bad JSON, bad recipient, unknown template, nothing to send
//   - 500 Internal Server Error: the queue could not be written
func (h *EmailHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var opts jobs.SendOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handler.WriteJSON(w, http.StatusRequestEntityTooLarge, jobs.SendResult{Error: "request body too large"})
			return
		}
		handler.WriteJSON(w, http.StatusBadRequest, jobs.SendResult{Error: "request body must be a JSON object"})
		return
	}

	result := h.mailer.Send(r.Context(), opts)
	if !result.Success {
		status := handler.ErrorCodeToHTTPStatus(domain.ErrorCode(result.Err))
		if domain.IsCode(result.Err, domain.EINTERNAL) {
			middleware.GetLogger(r.Context(), h.logger).Error("enqueue failed", "error", result.Err)
		}
		handler.WriteJSON(w, status, result)
		return
	}

	handler.WriteJSON(w, http.StatusAccepted, result)
}
