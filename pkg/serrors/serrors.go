package serrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the structured error carried across service boundaries. Status is
// the HTTP status the error maps to, Code is machine-readable and stable.
type Error struct {
	Status  int
	Code    string
	Message string
	Cause   error
	Meta    map[string]string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(status int, code, message string, cause error) *Error {
	return &Error{Status: status, Code: code, Message: message, Cause: cause}
}

func (e *Error) WithMeta(key, value string) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]string)
	}
	e.Meta[key] = value
	return e
}

const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeVersionConflict = "VERSION_CONFLICT"
	CodeLockConflict    = "LOCK_CONFLICT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_SERVER_ERROR"
)

func NewValidationError(message string) *Error {
	return New(http.StatusBadRequest, CodeValidation, message, nil)
}

func NewFieldRequiredError(field string) *Error {
	return NewValidationError(field + " is required").WithMeta("field", field)
}

func NewNotFoundError(entity string) *Error {
	return New(http.StatusNotFound, CodeNotFound, entity+" not found", nil)
}

// NewVersionConflictError reports that the aggregate changed since the caller
// last read it. Clients recover by refetching and retrying with the new
// version and the same idempotency key.
func NewVersionConflictError(entity string, expected, actual int64) *Error {
	return New(
		http.StatusConflict,
		CodeVersionConflict,
		fmt.Sprintf("%s changed since last read (expected version %d, found %d)", entity, expected, actual),
		nil,
	).WithMeta("expected_version", fmt.Sprintf("%d", expected)).
		WithMeta("actual_version", fmt.Sprintf("%d", actual))
}

// NewStatusConflictError reports a terminal/incompatible aggregate status.
// Distinct from VERSION_CONFLICT: clients must abandon, not refetch-and-retry.
func NewStatusConflictError(code, message string) *Error {
	return New(http.StatusConflict, code, message, nil)
}

func NewLockConflictError(entityType, entityID, holder string) *Error {
	return New(
		http.StatusConflict,
		CodeLockConflict,
		fmt.Sprintf("%s %s is locked by another user", entityType, entityID),
		nil,
	).WithMeta("holder", holder)
}

func NewRateLimitedError() *Error {
	return New(http.StatusTooManyRequests, CodeRateLimited, "too many requests", nil)
}

func NewInternalError(cause error) *Error {
	return New(http.StatusInternalServerError, CodeInternal, "internal server error", cause)
}

// Status extracts the HTTP status from err, defaulting to 500.
func Status(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}
	return http.StatusInternalServerError
}

// Code extracts the machine-readable code from err.
func Code(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}
