package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of fetch errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

var (
	// ErrRetriesExhausted wraps the last error once every attempt has failed
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrNotAdmitted marks tasks that never ran because the run was cancelled
	ErrNotAdmitted = errors.New("task not admitted: run cancelled")
)

// FetchError is a single failed fetch attempt, typed so retry predicates can
// tell transient failures from permanent ones
type FetchError struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// NewFetchError creates a typed fetch error
func NewFetchError(errorType ErrorType, code int, format string, args ...interface{}) *FetchError {
	return &FetchError{
		Type:    errorType,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing:
		return false
	default:
		return false
	}
}

// ConfigError is an invalid configuration value. It is fatal: a run never
// starts with one.
type ConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid config %s=%v: %s", e.Field, e.Value, e.Reason)
}

// NewConfigError creates a configuration error for a single field
func NewConfigError(field string, value interface{}, reason string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

// IsConfigError reports whether err (or anything it wraps or joins) is a ConfigError
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// TaskFailure is the terminal error of a task whose attempts were all used up
// or that hit an error its retry predicate refused
type TaskFailure struct {
	TaskID   string
	Attempts int
	Err      error
}

func (e *TaskFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "task %s failed after %d attempt", e.TaskID, e.Attempts)
	if e.Attempts != 1 {
		b.WriteString("s")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TaskFailure) Unwrap() error {
	return e.Err
}
