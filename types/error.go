package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Wait and lookup error codes
const (
	ErrTimeout      ErrorCode = "TIMEOUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrRootNotFound ErrorCode = "ROOT_NOT_FOUND"
)

// Engine error codes
const (
	ErrInterceptConfig ErrorCode = "INTERCEPT_CONFIG"
	ErrRenderFailed    ErrorCode = "RENDER_FAILED"
	ErrDuplicateAction ErrorCode = "DUPLICATE_ACTION"
	ErrActionPanicked  ErrorCode = "ACTION_PANICKED"
)

// Driver and session error codes
const (
	ErrDriver        ErrorCode = "DRIVER"
	ErrSessionEnded  ErrorCode = "SESSION_ENDED"
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Selector  string    `json:"selector,omitempty"`
	Cause     error     `json:"-"`
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

// WithSelector records the selector the failing operation targeted.
func (e *Error) WithSelector(selector string) *Error {
	e.Selector = selector
	return e
}

// NewTimeoutError creates a TIMEOUT error naming the operation and its target.
func NewTimeoutError(operation, target string, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		Code:     ErrTimeout,
		Message:  fmt.Sprintf("%s %q: %s", operation, target, msg),
		Selector: target,
	}
}

// NewNotFoundError creates a NOT_FOUND error for a missing element.
func NewNotFoundError(selector string) *Error {
	return &Error{
		Code:     ErrNotFound,
		Message:  fmt.Sprintf("element %q not found", selector),
		Selector: selector,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, looking through wrappers.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
