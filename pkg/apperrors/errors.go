// Package apperrors defines the typed error taxonomy shared by the request
// pipeline: every failure a handler may surface is one of the kinds below,
// carrying an HTTP status, a machine-readable code, and a correlation ID.
//
// Unknown errors are never rendered to callers; the Handler logs them with
// full request context and substitutes a generic Internal error.
package apperrors

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an error into the taxonomy. Kinds are a closed set so the
// response builder can match exhaustively.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindRateLimit
	KindBusiness
	KindInsufficientFunds
	KindTransactionLimit
	KindExternalService
	KindDatabase
	KindInternal
)

// Status returns the HTTP status associated with the kind
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindBusiness, KindInsufficientFunds, KindTransactionLimit:
		return http.StatusUnprocessableEntity
	case KindExternalService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine-readable code associated with the kind
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindAuthentication:
		return "AUTHENTICATION_ERROR"
	case KindAuthorization:
		return "AUTHORIZATION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindRateLimit:
		return "RATE_LIMIT_EXCEEDED"
	case KindBusiness:
		return "BUSINESS_ERROR"
	case KindInsufficientFunds:
		return "INSUFFICIENT_FUNDS"
	case KindTransactionLimit:
		return "TRANSACTION_LIMIT_EXCEEDED"
	case KindExternalService:
		return "EXTERNAL_SERVICE_ERROR"
	case KindDatabase:
		return "DATABASE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// AppError is the typed error carried through the request pipeline.
// Operational errors are expected, recoverable failures whose message is safe
// to describe to the caller. Non-operational errors are programming faults.
type AppError struct {
	ID          string
	Kind        Kind
	Message     string
	Details     map[string]interface{}
	Timestamp   time.Time
	Operational bool
	RetryAfter  time.Duration

	// status overrides the kind's default HTTP status when non-zero. The
	// auth middleware uses this to render invalid tokens as 403 while
	// keeping the Authentication kind.
	status int

	cause error
}

// New creates a typed error of the given kind
func New(kind Kind, message string) *AppError {
	return &AppError{
		ID:          uuid.NewString(),
		Kind:        kind,
		Message:     message,
		Timestamp:   time.Now().UTC(),
		Operational: kind != KindInternal,
	}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.cause
}

// StatusCode returns the HTTP status for this error
func (e *AppError) StatusCode() int {
	if e.status != 0 {
		return e.status
	}
	return e.Kind.Status()
}

// Code returns the machine-readable code for this error
func (e *AppError) Code() string {
	return e.Kind.Code()
}

// WithStatus overrides the HTTP status while keeping the kind
func (e *AppError) WithStatus(status int) *AppError {
	e.status = status
	return e
}

// WithDetails attaches structured context to the error
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithRetryAfter attaches a retry hint, rendered as a Retry-After header
func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	e.RetryAfter = d
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// Validation creates a 400 VALIDATION_ERROR
func Validation(message string) *AppError { return New(KindValidation, message) }

// Authentication creates a 401 AUTHENTICATION_ERROR
func Authentication(message string) *AppError { return New(KindAuthentication, message) }

// Authorization creates a 403 AUTHORIZATION_ERROR
func Authorization(message string) *AppError { return New(KindAuthorization, message) }

// NotFound creates a 404 NOT_FOUND
func NotFound(message string) *AppError { return New(KindNotFound, message) }

// Conflict creates a 409 CONFLICT
func Conflict(message string) *AppError { return New(KindConflict, message) }

// RateLimit creates a 429 RATE_LIMIT_EXCEEDED
func RateLimit(message string) *AppError { return New(KindRateLimit, message) }

// Business creates a 422 BUSINESS_ERROR
func Business(message string) *AppError { return New(KindBusiness, message) }

// InsufficientFunds creates a 422 INSUFFICIENT_FUNDS
func InsufficientFunds(message string) *AppError { return New(KindInsufficientFunds, message) }

// TransactionLimit creates a 422 TRANSACTION_LIMIT_EXCEEDED
func TransactionLimit(message string) *AppError { return New(KindTransactionLimit, message) }

// ExternalService creates a 503 EXTERNAL_SERVICE_ERROR
func ExternalService(message string) *AppError { return New(KindExternalService, message) }

// Database creates a 500 DATABASE_ERROR, logged separately by the handler
func Database(message string) *AppError { return New(KindDatabase, message) }

// Internal creates a non-operational 500 INTERNAL_ERROR
func Internal(message string) *AppError { return New(KindInternal, message) }
