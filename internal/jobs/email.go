package jobs

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jklgtravel/mailer/internal/domain"
	"github.com/jklgtravel/mailer/internal/email"
	"github.com/jklgtravel/mailer/internal/telemetry"
)

// SendOptions is an enqueue request. Either Template or both Subject and HTML
// must be set; an explicit Subject or HTML overrides the template's.
type SendOptions struct {
	To       string         `json:"to" validate:"required,email"`
	Subject  string         `json:"subject,omitempty"`
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	HTML     string         `json:"html,omitempty"`
}

// SendResult reports the outcome of an enqueue. Delivery happens later;
// Queued only means a pending record now exists.
type SendResult struct {
	Success bool   `json:"success"`
	Queued  bool   `json:"queued,omitempty"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`

	// Err is the typed cause behind Error, for HTTP status mapping.
	Err error `json:"-"`
}

// Notifier is told about every inserted record so idle workers can wake early.
type Notifier interface {
	NotifyEnqueued(ctx context.Context, id uuid.UUID) error
}

// Mailer is the write path request handlers use to queue transactional email.
// It never talks to a mail server.
type Mailer struct {
	store    domain.EmailEnqueuer
	notifier Notifier
	metrics  *telemetry.MailMetrics
	validate *validator.Validate
	logger   *slog.Logger
}

// MailerOption configures a Mailer.
type MailerOption func(*Mailer)

// WithNotifier publishes a wake-up after each insert.
func WithNotifier(n Notifier) MailerOption {
	return func(m *Mailer) { m.notifier = n }
}

// WithMetrics records enqueue outcomes.
func WithMetrics(metrics *telemetry.MailMetrics) MailerOption {
	return func(m *Mailer) { m.metrics = metrics }
}

// NewMailer creates a Mailer backed by store.
func NewMailer(store domain.EmailEnqueuer, logger *slog.Logger, opts ...MailerOption) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mailer{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "mailer"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send validates opts, renders the template if one is named, and inserts one
// pending record. It never returns an error: failures are reported in the
// result so callers cannot accidentally fail a request on mail problems.
func (m *Mailer) Send(ctx context.Context, opts SendOptions) SendResult {
	const op = "mailer.send"

	opts.To = strings.TrimSpace(opts.To)
	if err := m.validate.Struct(opts); err != nil {
		return m.reject(opts, domain.NewValidationError(op, "to", "a valid recipient email address is required"))
	}

	subject, html := opts.Subject, opts.HTML
	if opts.Template != "" {
		rendered, err := email.Render(opts.Template, opts.Data)
		if err != nil {
			return m.reject(opts, domain.WrapError(err, domain.EINVALID, op, err.Error()))
		}
		if subject == "" {
			subject = rendered.Subject
		}
		if html == "" {
			html = rendered.HTML
		}
	}

	if strings.TrimSpace(subject) == "" || strings.TrimSpace(html) == "" {
		return m.reject(opts, domain.Invalid(op, "either a template or both subject and html are required"))
	}

	id, err := m.store.Insert(ctx, domain.NewEmail{
		RecipientEmail: opts.To,
		Subject:        subject,
		Body:           html,
	})
	if err != nil {
		if domain.IsValidationError(err) {
			return m.reject(opts, err)
		}
		m.logger.ErrorContext(ctx, "failed to queue email",
			"template", opts.Template,
			"error", err,
		)
		m.metrics.RecordEnqueue(opts.Template, "error")
		return SendResult{Success: false, Error: domain.ErrorMessage(err), Err: err}
	}

	m.metrics.RecordEnqueue(opts.Template, "queued")
	m.logger.InfoContext(ctx, "email queued",
		"email_id", id,
		"template", opts.Template,
	)

	if m.notifier != nil {
		if err := m.notifier.NotifyEnqueued(ctx, id); err != nil {
			m.logger.WarnContext(ctx, "failed to publish wake-up", "email_id", id, "error", err)
		}
	}

	return SendResult{Success: true, Queued: true, ID: id.String()}
}

func (m *Mailer) reject(opts SendOptions, err error) SendResult {
	m.metrics.RecordEnqueue(opts.Template, "rejected")
	m.logger.Debug("email rejected", "template", opts.Template, "error", err)
	return SendResult{Success: false, Error: domain.ErrorMessage(err), Err: err}
}

// =============================================================================
// Typed enqueue helpers
// =============================================================================

// EnqueueEmailVerification queues the email-verification template.
func (m *Mailer) EnqueueEmailVerification(ctx context.Context, to string, data email.EmailVerificationData) SendResult {
	return m.sendTemplate(ctx, to, data)
}

// EnqueuePasswordReset queues the password-reset template.
func (m *Mailer) EnqueuePasswordReset(ctx context.Context, to string, data email.PasswordResetData) SendResult {
	return m.sendTemplate(ctx, to, data)
}

// EnqueueBookingConfirmation queues the booking-confirmation template.
func (m *Mailer) EnqueueBookingConfirmation(ctx context.Context, to string, data email.BookingConfirmationData) SendResult {
	return m.sendTemplate(ctx, to, data)
}

// EnqueuePaymentReceipt queues the payment-receipt template.
func (m *Mailer) EnqueuePaymentReceipt(ctx context.Context, to string, data email.PaymentReceiptData) SendResult {
	return m.sendTemplate(ctx, to, data)
}

func (m *Mailer) sendTemplate(ctx context.Context, to string, data email.TemplateData) SendResult {
	return m.Send(ctx, SendOptions{
		To:       to,
		Template: data.TemplateName(),
		Data:     data.Data(),
	})
}
