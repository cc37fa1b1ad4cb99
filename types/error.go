package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures across packages.
type ErrorCode string

// Crawl and probe error codes
const (
	ErrTransientFetchFailure ErrorCode = "TRANSIENT_FETCH_FAILURE"
	ErrProbeTimeout          ErrorCode = "PROBE_TIMEOUT"
	ErrProbeUnreachable      ErrorCode = "PROBE_UNREACHABLE"
)

// Index error codes
const (
	ErrInvalidSelector ErrorCode = "INVALID_SELECTOR"
	ErrInvalidRecord   ErrorCode = "INVALID_RECORD"
	ErrStoreFailure    ErrorCode = "STORE_FAILURE"
	ErrNotFound        ErrorCode = "NOT_FOUND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Subject   string    `json:"subject,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Subject != "" {
		prefix += " " + e.Subject + ":"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
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

// WithSubject names the domain or agent URL the error is about.
func (e *Error) WithSubject(subject string) *Error {
	e.Subject = subject
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

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
