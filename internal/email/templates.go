package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
)

// Built-in template names.
const (
	TemplateEmailVerification   = "email-verification"
	TemplatePasswordReset       = "password-reset"
	TemplateBookingConfirmation = "booking-confirmation"
	TemplatePaymentReceipt      = "payment-receipt"
)

//go:embed templates/*.html
var templateFS embed.FS

// templateSpec is one built-in template: a fixed subject plus the keys it interpolates.
type templateSpec struct {
	file    string
	subject string
	keys    []string
}

var templateSpecs = map[string]templateSpec{
	TemplateEmailVerification: {
		file:    "email_verification.html",
		subject: "Verify Your Email - JKLG Travel",
		keys:    []string{"name", "verificationLink", "expiresIn"},
	},
	TemplatePasswordReset: {
		file:    "password_reset.html",
		subject: "Reset Your Password - JKLG Travel",
		keys:    []string{"name", "resetLink", "expiresIn"},
	},
	TemplateBookingConfirmation: {
		file:    "booking_confirmation.html",
		subject: "Booking Confirmed - JKLG Travel",
		keys:    []string{"name", "bookingId", "packageName", "travelDate", "travelers", "totalAmount"},
	},
	TemplatePaymentReceipt: {
		file:    "payment_receipt.html",
		subject: "Payment Receipt - JKLG Travel",
		keys:    []string{"name", "receiptNumber", "bookingId", "amount", "paymentMethod", "paidAt"},
	},
}

var templates = map[string]*template.Template{}

func init() {
	layout := template.Must(template.New("layout").ParseFS(templateFS, "templates/layout.html"))
	for name, spec := range templateSpecs {
		base := template.Must(layout.Clone())
		templates[name] = template.Must(base.ParseFS(templateFS, "templates/"+spec.file))
	}
}

// Rendered is the output of Render.
type Rendered struct {
	Subject string
	HTML    string
}

// Render maps a built-in template name and a data bag to a subject and HTML body.
// Values are stringified and HTML-escaped; keys a template documents but data
// omits render as empty. Callers must still sanitize user-supplied text, since
// escaping does not make arbitrary content safe to present as a trusted link.
func Render(name string, data map[string]any) (Rendered, error) {
	spec, ok := templateSpecs[name]
	if !ok {
		return Rendered{}, ErrTemplateNotFound(name)
	}

	vars := make(map[string]string, len(spec.keys)+1)
	for _, k := range spec.keys {
		vars[k] = ""
	}
	for k, v := range data {
		if v == nil {
			continue
		}
		vars[k] = fmt.Sprint(v)
	}
	vars["subject"] = spec.subject

	var buf bytes.Buffer
	if err := templates[name].ExecuteTemplate(&buf, "layout", vars); err != nil {
		return Rendered{}, ErrTemplateRender(name, err)
	}

	return Rendered{Subject: spec.subject, HTML: buf.String()}, nil
}

// templateNames returns the built-in template names, sorted.
func templateNames() []string {
	names := make([]string, 0, len(templateSpecs))
	for name := range templateSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ============================================================================
// TYPED TEMPLATE DATA
// ============================================================================

// TemplateData is implemented by the typed payloads below.
type TemplateData interface {
	TemplateName() string
	Data() map[string]any
}

// EmailVerificationData is the payload for the email-verification template.
type EmailVerificationData struct {
	Name             string
	VerificationLink string
	ExpiresIn        string // e.g. "24 hours"
}

func (d EmailVerificationData) TemplateName() string { return TemplateEmailVerification }

func (d EmailVerificationData) Data() map[string]any {
	return map[string]any{
		"name":             d.Name,
		"verificationLink": d.VerificationLink,
		"expiresIn":        d.ExpiresIn,
	}
}

// PasswordResetData is the payload for the password-reset template.
type PasswordResetData struct {
	Name      string
	ResetLink string
	ExpiresIn string
}

func (d PasswordResetData) TemplateName() string { return TemplatePasswordReset }

func (d PasswordResetData) Data() map[string]any {
	return map[string]any{
		"name":      d.Name,
		"resetLink": d.ResetLink,
		"expiresIn": d.ExpiresIn,
	}
}

// BookingConfirmationData is the payload for the booking-confirmation template.
// Amounts are preformatted by the caller, e.g. "$1,250.00".
type BookingConfirmationData struct {
	Name        string
	BookingID   string
	PackageName string
	TravelDate  string
	Travelers   int
	TotalAmount string
}

func (d BookingConfirmationData) TemplateName() string { return TemplateBookingConfirmation }

func (d BookingConfirmationData) Data() map[string]any {
	return map[string]any{
		"name":        d.Name,
		"bookingId":   d.BookingID,
		"packageName": d.PackageName,
		"travelDate":  d.TravelDate,
		"travelers":   d.Travelers,
		"totalAmount": d.TotalAmount,
	}
}

// PaymentReceiptData is the payload for the payment-receipt template.
type PaymentReceiptData struct {
	Name          string
	ReceiptNumber string
	BookingID     string
	Amount        string
	PaymentMethod string
	PaidAt        string
}

func (d PaymentReceiptData) TemplateName() string { return TemplatePaymentReceipt }

func (d PaymentReceiptData) Data() map[string]any {
	return map[string]any{
		"name":          d.Name,
		"receiptNumber": d.ReceiptNumber,
		"bookingId":     d.BookingID,
		"amount":        d.Amount,
		"paymentMethod": d.PaymentMethod,
		"paidAt":        d.PaidAt,
	}
}
