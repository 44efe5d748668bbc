package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the runtime.
type ErrorCode string

// Execution boundary error codes
const (
	ErrValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrAuthorizationDenied ErrorCode = "AUTHORIZATION_DENIED"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrCapabilityNotFound  ErrorCode = "CAPABILITY_NOT_FOUND"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
)

// Process and step error codes
const (
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrStepNotFound      ErrorCode = "STEP_NOT_FOUND"
	ErrDuplicateStep     ErrorCode = "DUPLICATE_STEP"
	ErrLowConfidence     ErrorCode = "LOW_CONFIDENCE"
	ErrNoOutput          ErrorCode = "NO_OUTPUT"
)

// Domain-tagged error codes recognized by fallback compositions.
const (
	ErrAssemblyFailed ErrorCode = "ASSEMBLY_FAILED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Issues    []Issue        `json:"issues,omitempty"`
	Cause     error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewValidationError creates a VALIDATION_FAILED error carrying the
// field-tagged issue list.
func NewValidationError(message string, issues []Issue) *Error {
	return &Error{Code: ErrValidationFailed, Message: message, Issues: issues}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithDetail attaches a named detail value.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, unwrapping as
// needed. Errors without a code classify as INTERNAL_ERROR.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternalError
}
