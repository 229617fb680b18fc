package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // optional - some servers allow unauthenticated relay
	Password string // optional
	From     string // sender address
	FromName string // optional sender display name
	Timeout  time.Duration
}

// SMTPTransport implements Transport using go-mail.
// The go-mail client is built once from the config and reused for every
// send; each send dials a fresh connection.
type SMTPTransport struct {
	config *SMTPConfig
	client *mail.Client
	logger *slog.Logger
}

var _ Transport = (*SMTPTransport)(nil)

// NewSMTPTransport creates an SMTP transport. It does not dial; call Verify for that.
func NewSMTPTransport(config *SMTPConfig, logger *slog.Logger) (*SMTPTransport, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if config.From == "" {
		return nil, ErrInvalidFromAddress
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mail.NewClient(config.Host, clientOptions(config)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return &SMTPTransport{
		config: config,
		client: client,
		logger: logger.With("transport", "smtp"),
	}, nil
}

// Verify dials the server and authenticates without sending anything.
func (s *SMTPTransport) Verify(ctx context.Context) error {
	if err := s.client.DialWithContext(ctx); err != nil {
		return &DeliveryError{Transport: "smtp", Err: fmt.Errorf("connection failed: %w", err)}
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("smtp: close after verify failed", "error", err)
	}

	s.logger.Info("smtp: connection verified",
		"host", s.config.Host,
		"port", s.config.Port,
	)
	return nil
}

// Send delivers msg as multipart/alternative with the plain-text part first.
func (s *SMTPTransport) Send(ctx context.Context, msg Message) (SendResult, error) {
	m := mail.NewMsg()

	if s.config.FromName != "" {
		if err := m.FromFormat(s.config.FromName, s.config.From); err != nil {
			return SendResult{}, &DeliveryError{Transport: "smtp", Err: fmt.Errorf("%w: %v", ErrInvalidFromAddress, err)}
		}
	} else if err := m.From(s.config.From); err != nil {
		return SendResult{}, &DeliveryError{Transport: "smtp", Err: fmt.Errorf("%w: %v", ErrInvalidFromAddress, err)}
	}

	if err := m.To(msg.To); err != nil {
		return SendResult{}, &DeliveryError{Transport: "smtp", Err: fmt.Errorf("%w: %v", ErrInvalidToAddress, err)}
	}

	m.Subject(msg.Subject)
	m.SetMessageID()

	// Prefer HTML with text fallback, or just text
	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
	}

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return SendResult{}, &DeliveryError{Transport: "smtp", Err: err}
	}

	return SendResult{MessageID: m.GetMessageID()}, nil
}

// clientOptions returns go-mail client options based on configuration.
func clientOptions(config *SMTPConfig) []mail.Option {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(timeout),
	}

	// TLS mode based on port
	switch config.Port {
	case 465:
		// Implicit TLS (SMTPS)
		opts = append(opts, mail.WithSSL())
	case 587:
		// STARTTLS (submission port)
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		// 25, or local catchers like Mailpit on 1025
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		)
	}

	return opts
}
