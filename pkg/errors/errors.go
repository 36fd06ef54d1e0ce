package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness. Details carries
// per-item messages for aggregated rejections (e.g. one entry per offending
// file in a batch upload).
type Error struct {
	Code              string   `json:"code"`
	Message           string   `json:"message"`
	Status            int      `json:"status"`
	Details           []string `json:"details,omitempty"`
	RetryAfterSeconds int      `json:"retry_after_seconds,omitempty"`
	Err               error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrUnauthorized   = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden      = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound       = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation     = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrTierForbidden  = New("TIER_FORBIDDEN", http.StatusForbidden, "batch processing is not included in the current plan")
	ErrPromptConfig   = New("PROMPT_CONFIG_ERROR", http.StatusBadRequest, "invalid prompt configuration")
	ErrQuotaExceeded  = New("QUOTA_EXCEEDED", http.StatusPaymentRequired, "page quota exceeded for the current billing period")
	ErrRateLimited    = New("RATE_LIMITED", http.StatusTooManyRequests, "rate limit exceeded")
	ErrTierLookup     = New("TIER_LOOKUP_FAILED", http.StatusBadGateway, "failed to resolve subscription tier")
	ErrInternal       = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrBatchIngestion = New("BATCH_INGESTION_FAILED", http.StatusInternalServerError, "failed to ingest batch")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying per-item detail messages.
func WithDetails(err *Error, details []string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}

// WithRetryAfter returns a copy of the error annotated with a client backoff
// hint in seconds.
func WithRetryAfter(err *Error, seconds int) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.RetryAfterSeconds = seconds
	return &clone
}
