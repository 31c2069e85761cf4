// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed errors for the steward orchestration core.
//
// Operation-level failures (guardrail blocks, unknown operations, loops) are
// surfaced to the conversation as error-flagged results; StewardError carries
// the code so that logs, metrics and the CLI can tell them apart.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies steward errors.
type ErrorCode string

// Generic codes.
const (
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeToolFailure  ErrorCode = "TOOL_FAILURE"
	// CodeContextLost means the caller's context ended mid-operation.
	CodeContextLost  ErrorCode = "CONTEXT_LOST"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeMemoryError  ErrorCode = "MEMORY_ERROR"
)

// Model backend codes.
const (
	CodeLLMError   ErrorCode = "LLM_ERROR"
	CodeRateLimit  ErrorCode = "RATE_LIMITED"
	CodeOverloaded ErrorCode = "OVERLOADED"
)

// Orchestration codes.
const (
	// CodeGuardrail: the primary agent called a denied operation.
	CodeGuardrail        ErrorCode = "GUARDRAIL_VIOLATION"
	CodeUnknownOperation ErrorCode = "UNKNOWN_OPERATION"
	// CodeLoopDetected: the same call repeated within the detector window.
	CodeLoopDetected    ErrorCode = "LOOP_DETECTED"
	CodeProfileNotFound ErrorCode = "PROFILE_NOT_FOUND"
	CodeProfileInvalid  ErrorCode = "PROFILE_INVALID"
	// CodeOutputInvalid: a delegated artifact is missing or failed verification.
	CodeOutputInvalid ErrorCode = "OUTPUT_INVALID"
)

var statusCodes = map[ErrorCode]int{
	CodeInvalidInput:     http.StatusBadRequest,
	CodeProfileInvalid:   http.StatusBadRequest,
	CodeUnauthorized:     http.StatusUnauthorized,
	CodeGuardrail:        http.StatusForbidden,
	CodeNotFound:         http.StatusNotFound,
	CodeProfileNotFound:  http.StatusNotFound,
	CodeUnknownOperation: http.StatusNotFound,
	CodeTimeout:          http.StatusRequestTimeout,
	CodeLoopDetected:     http.StatusConflict,
	CodeOutputInvalid:    http.StatusUnprocessableEntity,
	CodeRateLimit:        http.StatusTooManyRequests,
	CodeOverloaded:       529,
}

// StewardError is a coded error. Context holds values for logs and the
// CLI's JSON output. Attributes are string pairs put on the active span when
// the error is recorded.
type StewardError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]any
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// New returns an error with code, message and optional cause. StatusCode is
// derived from the code.
func New(code ErrorCode, msg string, cause error) *StewardError {
	status, ok := statusCodes[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &StewardError{Code: code, Message: msg, Err: cause, StatusCode: status}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *StewardError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

func (e *StewardError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

func (e *StewardError) Unwrap() error { return e.Err }

// WithContext sets key in Context and returns e.
func (e *StewardError) WithContext(key string, value any) *StewardError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithAttribute sets a span attribute and returns e.
func (e *StewardError) WithAttribute(key, value string) *StewardError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable marks whether retrying may succeed.
func (e *StewardError) WithRecoverable(recoverable bool) *StewardError {
	e.Recoverable = recoverable
	return e
}

// RecoverableString is Recoverable as a metric attribute value.
func (e *StewardError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

func (e *StewardError) MarshalJSON() ([]byte, error) {
	type wire struct {
		Code        ErrorCode      `json:"code"`
		Message     string         `json:"message"`
		Cause       string         `json:"error,omitempty"`
		Recoverable bool           `json:"recoverable"`
		StatusCode  int            `json:"status_code"`
		Context     map[string]any `json:"context,omitempty"`
	}
	w := wire{Code: e.Code, Message: e.Message, Recoverable: e.Recoverable, StatusCode: e.StatusCode, Context: e.Context}
	if e.Err != nil {
		w.Cause = e.Err.Error()
	}
	return json.Marshal(w)
}

// AsStewardError returns the first StewardError in err's chain, or err
// wrapped as CodeInternal. A nil err gives nil.
func AsStewardError(err error) *StewardError {
	if err == nil {
		return nil
	}
	var se *StewardError
	if stderrors.As(err, &se) {
		return se
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the first StewardError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *StewardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Is reports whether any StewardError in err's chain has code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var se *StewardError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Err
	}
	return false
}
