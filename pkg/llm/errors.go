package llm

import (
	"errors"
	"fmt"
	"strings"
)

// StatusCodeOverloaded is the status some providers use to signal overload.
const StatusCodeOverloaded = 529

// ErrOverloaded marks a provider-reported overload condition. Callers should
// move on to another model rather than retry the same one.
var ErrOverloaded = errors.New("llm: provider overloaded")

// StatusError is a model backend failure that carries the HTTP status the
// provider answered with.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

// NewStatusError wraps err with the provider name and HTTP status.
func NewStatusError(provider string, status int, message string, err error) *StatusError {
	return &StatusError{Provider: provider, StatusCode: status, Message: message, Err: err}
}

// Error implements error.
func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, msg)
}

// Unwrap returns the underlying cause.
func (e *StatusError) Unwrap() error { return e.Err }

// Overloaded reports whether the provider signalled overload.
func (e *StatusError) Overloaded() bool {
	if e.StatusCode == StatusCodeOverloaded {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "overloaded")
}

// Is lets errors.Is(err, ErrOverloaded) match overload responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrOverloaded && e.Overloaded()
}

// IsOverloaded reports whether err is a provider overload signal.
func IsOverloaded(err error) bool {
	return errors.Is(err, ErrOverloaded)
}
