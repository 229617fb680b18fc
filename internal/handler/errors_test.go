package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jklgtravel/mailer/internal/domain"
)

type errorEnvelope struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"unknown_code", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestErrorResponse_JSON(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "unknown email",
			err:            domain.NotFound("email_queue.get", "email", "abc-123"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   domain.ENOTFOUND,
		},
		{
			name:           "unknown template",
			err:            domain.Invalid("mailer.send", `unknown template "welcome"`),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   domain.EINVALID,
		},
		{
			name:           "requeue of a sent email",
			err:            domain.Conflict("email_queue.requeue", "only failed emails can be requeued"),
			expectedStatus: http.StatusConflict,
			expectedCode:   domain.ECONFLICT,
		},
		{
			name:           "missing admin token",
			err:            domain.Unauthorized("admin.auth", "missing token"),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   domain.EUNAUTHORIZED,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/emails", nil)
			req.Header.Set("Accept", "application/json")
			rec := httptest.NewRecorder()

			ErrorResponse(rec, req, tt.err)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.expectedCode, decodeError(t, rec).Error.Code)
		})
	}
}

func TestErrorResponse_DefaultsToJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/emails", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, domain.Invalid("mailer.send", "subject is required"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "subject is required", decodeError(t, rec).Error.Message)
}

func TestErrorResponse_HTML(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/emails/x", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, domain.NotFound("email_queue.get", "email", "abc-123"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "email not found")
	assert.NotContains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestErrorResponse_InternalHidesDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/emails", nil)
	rec := httptest.NewRecorder()

	err := domain.Internal(errors.New("dial tcp 10.0.0.4:5432: connection refused"), "email_queue.list", "failed to list emails")
	ErrorResponse(rec, req, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeError(t, rec)
	assert.Equal(t, "An internal error occurred. Please try again later.", env.Error.Message)
	assert.NotContains(t, env.Error.Message, "10.0.0.4")
}

func TestErrorResponse_PlainErrorIsInternal(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/emails", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, domain.EINTERNAL, decodeError(t, rec).Error.Code)
}

func TestValidationErrorResponse_JSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/emails", nil)
	rec := httptest.NewRecorder()

	err := domain.NewValidationError("mailer.send", "to", "must be a valid email address")
	err = domain.AddFieldError(err, "subject", "subject is required")

	ValidationErrorResponse(rec, req, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeError(t, rec)
	assert.Equal(t, domain.EINVALID, env.Error.Code)
	assert.Len(t, env.Error.Fields, 2)
	assert.Equal(t, "must be a valid email address", env.Error.Fields["to"])
}

func TestValidationErrorResponse_NonValidationError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/emails", nil)
	rec := httptest.NewRecorder()

	ValidationErrorResponse(rec, req, domain.NotFound("email_queue.get", "email", "123"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotFoundResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFoundResponse(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.ENOTFOUND, decodeError(t, rec).Error.Code)
}

func TestAcceptsJSON(t *testing.T) {
	tests := []struct {
		name        string
		accept      string
		contentType string
		expected    bool
	}{
		{name: "application/json in Accept", accept: "application/json", expected: true},
		{name: "application/json with charset", accept: "application/json; charset=utf-8", expected: true},
		{name: "application/json in Content-Type", contentType: "application/json", expected: true},
		{name: "no headers", expected: true},
		{name: "text/html Accept", accept: "text/html"},
		{name: "browser Accept", accept: "text/html,application/xhtml+xml,*/*;q=0.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/emails", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			assert.Equal(t, tt.expected, acceptsJSON(req))
		})
	}
}
