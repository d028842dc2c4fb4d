// Package apierror provides the typed error taxonomy shared by all services
// and the canonical error envelope returned to clients. Services return
// *Error values; handlers translate the Kind into an HTTP status without
// leaking internal details (stack traces, SQL, driver errors).
package apierror

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the engine's failure categories.
type Kind int

const (
	KindNotFound          Kind = iota // unknown id
	KindInvalidState                  // operation not legal in current lifecycle state
	KindConflict                      // concurrent-claim or double-open race lost
	KindValidation                    // bad input, insufficient payment, incomplete serial capture
	KindInsufficientStock             // FIFO claim count exceeds availability
	KindInternal                      // everything else — storage, collaborator failures
)

// Code returns the stable machine-readable code carried in the JSON envelope.
func (k Kind) Code() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindInsufficientStock:
		return "insufficient_stock"
	default:
		return "internal"
	}
}

// Error is the typed error returned by every service operation.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.cause)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.cause }

func newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return newf(KindInvalidState, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func InsufficientStock(format string, args ...interface{}) *Error {
	return newf(KindInsufficientStock, format, args...)
}

// Internal wraps an unexpected error so the cause survives for logging while
// the client only ever sees Detail.
func Internal(detail string, cause error) *Error {
	return &Error{Kind: KindInternal, Detail: detail, cause: cause}
}

// KindOf extracts the Kind from any error chain; unknown errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ── Response envelopes ────────────────────────────────────────────────────────

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Envelope builds the response body for an error chain.
func Envelope(err error) *APIError {
	var e *Error
	if errors.As(err, &e) {
		return &APIError{Code: e.Kind.Code(), Detail: e.Detail}
	}
	return &APIError{Code: KindInternal.Code(), Detail: "internal server error"}
}

// New keeps the plain-message constructor for middleware responses that do not
// originate from a service call (rate limits, auth failures).
func New(msg string) *APIError {
	return &APIError{Code: "error", Detail: msg}
}

// ValidationFields wraps multiple field errors from request binding.
type ValidationFields struct {
	Code   string            `json:"code"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationFields {
	return &ValidationFields{Code: "validation", Detail: "validation failed", Fields: fields}
}
