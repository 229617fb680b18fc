package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const postmarkBaseURL = "https://api.postmarkapp.com"

// PostmarkTransport implements Transport using the Postmark HTTP API.
type PostmarkTransport struct {
	apiKey   string
	from     string
	fromName string
	baseURL  string
	client   *http.Client
}

var _ Transport = (*PostmarkTransport)(nil)

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody,omitempty"`
	TextBody string `json:"TextBody,omitempty"`
}

type postmarkResponse struct {
	To        string `json:"To"`
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// PostmarkOption configures a PostmarkTransport.
type PostmarkOption func(*PostmarkTransport)

// WithPostmarkBaseURL points the transport at another API host (tests).
func WithPostmarkBaseURL(url string) PostmarkOption {
	return func(p *PostmarkTransport) { p.baseURL = url }
}

// WithPostmarkHTTPClient replaces the default HTTP client.
func WithPostmarkHTTPClient(c *http.Client) PostmarkOption {
	return func(p *PostmarkTransport) { p.client = c }
}

// NewPostmarkTransport creates a new Postmark transport.
func NewPostmarkTransport(apiKey, from, fromName string, opts ...PostmarkOption) *PostmarkTransport {
	p := &PostmarkTransport{
		apiKey:   apiKey,
		from:     from,
		fromName: fromName,
		baseURL:  postmarkBaseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Verify checks the server token against GET /server.
func (p *PostmarkTransport) Verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/server", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return &DeliveryError{Transport: "postmark", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &DeliveryError{Transport: "postmark", Err: fmt.Errorf("token check failed (status %d): %s", resp.StatusCode, string(body))}
	}
	return nil
}

// Send sends an email via Postmark
func (p *PostmarkTransport) Send(ctx context.Context, msg Message) (SendResult, error) {
	from := p.from
	if p.fromName != "" {
		from = fmt.Sprintf("%s <%s>", p.fromName, p.from)
	}

	payload := postmarkEmail{
		From:     from,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTML,
		TextBody: msg.Text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email", bytes.NewBuffer(jsonData))
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return SendResult{}, &DeliveryError{Transport: "postmark", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, &DeliveryError{Transport: "postmark", Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return SendResult{}, &DeliveryError{Transport: "postmark", Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))}
	}

	var result postmarkResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return SendResult{}, &DeliveryError{Transport: "postmark", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if result.ErrorCode != 0 {
		return SendResult{}, &DeliveryError{Transport: "postmark", Err: fmt.Errorf("error %d: %s", result.ErrorCode, result.Message)}
	}

	return SendResult{MessageID: result.MessageID}, nil
}

func (p *PostmarkTransport) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)
}
