// Package common provides shared errors, logging setup and retry helpers.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common engine errors.
var (
	// Storage lookups.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrInvalidInput   = errors.New("invalid input")

	// Authorization. Always checked before any mutation.
	ErrUnauthorized = errors.New("unauthorized")

	// Rule lifecycle.
	ErrCanaryNotPassed = errors.New("cannot promote rule: canary test not passed")
	ErrVersionConflict = errors.New("rule version changed concurrently")

	// Pass-2.
	ErrRateLimit   = errors.New("rate limit exceeded")
	ErrMaxRetries  = errors.New("max retries exceeded")
	ErrLLMResponse = errors.New("malformed llm response")

	// Configuration.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the operator.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new operator-facing error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// RetryableError wraps an error with an explicit retry decision.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable marks err as worth retrying.
func Retryable(err error) error {
	return &RetryableError{Err: err, Retryable: true}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return &RetryableError{Err: err, Retryable: false}
}

// IsRetryable determines if an error should trigger a retry.
// Unclassified errors are retried; cancellation of the caller is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	return true
}
