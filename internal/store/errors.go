package store

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// maxErrorLength bounds the error text fed back into query synthesis
const maxErrorLength = 500

// ExecutionError reports a query the store rejected or failed to run
type ExecutionError struct {
	Query   string
	Message string
	Err     error
}

// Error returns the normalized message
func (e *ExecutionError) Error() string {
	return e.Message
}

// Unwrap returns the underlying driver error
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError wraps a driver error for query. detail, when non-empty,
// replaces the driver's own message.
func NewExecutionError(query string, err error, detail string) *ExecutionError {
	msg := detail
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &ExecutionError{
		Query:   query,
		Message: NormalizeMessage(msg),
		Err:     err,
	}
}

// IsExecutionError reports whether err is an *ExecutionError
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}

// NormalizeMessage collapses whitespace and truncates long error text
func NormalizeMessage(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if msg == "" {
		return "unknown error"
	}
	if len(msg) <= maxErrorLength {
		return msg
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}
