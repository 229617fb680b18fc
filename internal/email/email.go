package email

import "context"

// Message is a single outbound email as handed to a Transport.
type Message struct {
	To      string // Recipient email address
	Subject string // Plain-text subject line
	HTML    string // HTML body
	Text    string // Plain-text fallback derived from HTML
}

// SendResult represents the result of sending an email.
type SendResult struct {
	MessageID string // Provider or generated Message-ID
}

//go:generate mockgen -source=email.go -destination=mock_transport.go -package=email

// Transport delivers messages to a mail provider.
// Implementations can use SMTP, Postmark, etc. A Transport is constructed once
// at process start and owned by a single worker.
type Transport interface {
	// Verify performs a lightweight connectivity and authentication check.
	// Workers call it once at startup and refuse to poll when it fails.
	Verify(ctx context.Context) error

	// Send delivers msg. Any provider-level failure is returned as a *DeliveryError.
	Send(ctx context.Context, msg Message) (SendResult, error)
}
