package queue

import (
	"errors"
	"fmt"
)

// nonRetryableError marks failures that must go straight to the dead-letter
// queue instead of consuming retry attempts (configuration errors, payloads
// that can never parse).
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string {
	return e.err.Error()
}

func (e *nonRetryableError) Unwrap() error {
	return e.err
}

// NonRetryable wraps an error so the consumer dead-letters the message
// immediately.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// NonRetryablef is NonRetryable over a formatted error.
func NonRetryablef(format string, args ...any) error {
	return &nonRetryableError{err: fmt.Errorf(format, args...)}
}

// IsNonRetryable reports whether the error was marked NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *nonRetryableError
	return errors.As(err, &nre)
}
