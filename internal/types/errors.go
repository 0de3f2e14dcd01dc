package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and repositories use these instead of
// hardcoded strings so the HTTP mapping stays in one place.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"
	ErrCodeValidationInvalidPlan  ErrorCode = "validation_invalid_plan"

	// Webhook authentication (400). Stripe treats any non-2xx as a delivery
	// failure; signature failures must be 400 so they are never retried as
	// transient errors.
	ErrCodeWebhookSignatureMissing ErrorCode = "webhook_signature_missing"
	ErrCodeWebhookSignatureInvalid ErrorCode = "webhook_signature_invalid"
	ErrCodeWebhookPayloadInvalid   ErrorCode = "webhook_payload_invalid"

	// Not Found (404)
	ErrCodeNotFoundUser         ErrorCode = "not_found_user"
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"

	// Conflict (409)
	ErrCodeConflictCustomerLink ErrorCode = "conflict_customer_link"

	// Internal/Upstream (500). Upstream failures are surfaced as 500 rather
	// than 502: for webhook deliveries a 5xx of any kind is what triggers
	// Stripe's redelivery, and the public endpoints promise a plain 500
	// envelope on provider failure.
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodePaymentDeclined     ErrorCode = "payment_declined"
)

// HTTPStatus maps an ErrorCode to its HTTP status code. Unrecognized codes
// fall back to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"), strings.HasPrefix(s, "webhook_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodePaymentDeclined):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether re-delivering the triggering webhook event could
// plausibly succeed. Only storage and upstream failures qualify; everything
// else is either a terminal client error or a benign no-op.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeInternalDB, ErrCodeInternalUnexpected,
		ErrCodeUpstreamStripe, ErrCodeUpstreamRateLimited:
		return true
	default:
		return false
	}
}

// AppError is the standard application error type. All domain and handler
// errors are expressed as AppError to get consistent HTTP status mapping and
// error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
