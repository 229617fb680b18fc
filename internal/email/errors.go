package email

import (
	"fmt"
	"strings"
)

// ============================================================================
// EMAIL ERROR CODES
// ============================================================================
// These constants mirror domain error codes to avoid circular imports.
// The handler layer maps these to HTTP status codes.

const (
	codeInternal = "internal"
	codeNotFound = "not_found"
	codeInvalid  = "invalid"
)

// ============================================================================
// EMAIL ERROR TYPE
// ============================================================================

// EmailError represents an email-specific error with a code and message.
type EmailError struct {
	Code    string
	Message string
}

func (e *EmailError) Error() string {
	return e.Message
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *EmailError) ErrorCode() string {
	return e.Code
}

// ErrorMessage returns the user-facing message.
func (e *EmailError) ErrorMessage() string {
	return e.Message
}

func newEmailError(code, message string) *EmailError {
	return &EmailError{Code: code, Message: message}
}

var (
	// ErrInvalidFromAddress is returned when the configured sender is rejected.
	ErrInvalidFromAddress = newEmailError(codeInvalid, "Invalid from email address")

	// ErrInvalidToAddress is returned when the recipient address is rejected.
	ErrInvalidToAddress = newEmailError(codeInvalid, "Invalid to email address")
)

// ErrTemplateNotFound creates a template not found error.
func ErrTemplateNotFound(templateName string) error {
	return &EmailError{
		Code:    codeNotFound,
		Message: fmt.Sprintf("Email template %s not found (available: %s)", templateName, strings.Join(templateNames(), ", ")),
	}
}

// ErrTemplateRender wraps a template execution failure.
func ErrTemplateRender(templateName string, err error) error {
	return &EmailError{
		Code:    codeInternal,
		Message: fmt.Sprintf("Email template %s failed to render: %v", templateName, err),
	}
}

// ============================================================================
// DELIVERY ERROR
// ============================================================================

// DeliveryError is returned by a Transport for any provider-level failure:
// auth, connection refused, recipient rejected, timeout. Its message is what
// the worker persists as the record's error_message.
type DeliveryError struct {
	Transport string // "smtp" or "postmark"
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Transport, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *DeliveryError) ErrorCode() string {
	return codeInternal
}
