package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
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

// Is matches another *Error by code so cloned errors still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
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
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrFeatureDisabled    = New("FEATURE_DISABLED", http.StatusNotFound, "feature disabled")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Enrollment workflow errors. All but ErrStorageFailure are business-rule
// violations and must not be retried automatically.
var (
	ErrCapacityExceeded       = New("CAPACITY_EXCEEDED", http.StatusConflict, "batch capacity exceeded")
	ErrNoSeatsAvailable       = New("NO_SEATS_AVAILABLE", http.StatusConflict, "no seats available in batch")
	ErrInvalidState           = New("INVALID_STATE", http.StatusConflict, "operation not allowed in current state")
	ErrNotPendingVerification = New("NOT_PENDING_VERIFICATION", http.StatusConflict, "payment is not awaiting verification")
	ErrIdempotencyKeyReused   = New("IDEMPOTENCY_KEY_REUSED", http.StatusConflict, "idempotency key already used for a different request")
	ErrStorageFailure         = New("STORAGE_FAILURE", http.StatusServiceUnavailable, "storage temporarily unavailable")
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

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Retryable reports whether the caller may retry the failed operation.
func Retryable(err error) bool {
	return HasCode(err, ErrStorageFailure.Code)
}
