// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/jllopis/steward/pkg/errors"
)

// CLIError wraps StewardError with a hint for the user.
type CLIError struct {
	*errors.StewardError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(se *errors.StewardError, hint string) *CLIError {
	return &CLIError{StewardError: se, Hint: hint}
}

// Error returns the message followed by the hint.
func (e *CLIError) Error() string {
	if e.StewardError == nil {
		return "unknown error"
	}
	msg := e.StewardError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the StewardError.
func (e *CLIError) Unwrap() error {
	if e.StewardError == nil {
		return nil
	}
	return e.StewardError
}

// PrintError writes the error as text or as a JSON object.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	if asJSON {
		payload := map[string]any{"error": map[string]any{
			"code":    e.Code,
			"title":   FormatErrorCode(e.Code),
			"message": e.Message,
			"hint":    e.Hint,
		}}
		_ = json.NewEncoder(w).Encode(payload)
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(e.Code), e.Message)
	if e.Err != nil {
		fmt.Fprintf(w, "  Cause: %v\n", e.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// NewConfigError wraps a configuration load failure.
func NewConfigError(err error, configPath string) *CLIError {
	se := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath)
	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(se, hint)
}

// NewInvalidArgumentError reports a bad flag or argument.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	se := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument %s: %s", arg, reason), nil).
		WithContext("argument", arg)
	return NewCLIError(se, "run 'steward help' for usage information")
}

// NewOperationError reports an operation that finished with an error result.
func NewOperationError(name, content string) *CLIError {
	se := errors.New(errors.CodeToolFailure, content, nil).WithContext("operation", name)
	return NewCLIError(se, "")
}

// WrapError turns any error into a CLIError with a hint chosen by its code.
func WrapError(err error) *CLIError {
	if err == nil {
		return nil
	}
	var ce *CLIError
	if stderrors.As(err, &ce) {
		return ce
	}
	se := errors.AsStewardError(err)
	return NewCLIError(se, hintFor(se.Code))
}

func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeUnauthorized:
		return "check your credentials or API key (llm.api_key or the provider's environment variable)"
	case errors.CodeRateLimit, errors.CodeOverloaded:
		return "the model backend is busy; configure llm.fallback_models or try again later"
	case errors.CodeTimeout:
		return "raise resilience.operation_timeout or check the backend health"
	case errors.CodeProfileNotFound:
		return "create the profile with 'steward agents create'"
	case errors.CodeLLMError:
		return "check that the model backend is reachable at llm.base_url"
	}
	return ""
}

var codeTitles = map[errors.ErrorCode]string{
	errors.CodeInternal:       "Internal Error",
	errors.CodeToolFailure:    "Operation Failure",
	errors.CodeLLMError:       "LLM Error",
	errors.CodeRateLimit:      "Rate Limited",
	errors.CodeProfileInvalid: "Invalid Profile",
	errors.CodeOutputInvalid:  "Invalid Output",
	errors.CodeGuardrail:      "Guardrail",
}

// FormatErrorCode returns a title for code: INVALID_INPUT becomes
// "Invalid Input" unless the code has its own title.
func FormatErrorCode(code errors.ErrorCode) string {
	if t, ok := codeTitles[code]; ok {
		return t
	}
	words := strings.Split(strings.ToLower(string(code)), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
