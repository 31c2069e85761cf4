package main

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jllopis/steward/pkg/errors"
)

func TestWrapErrorHints(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode errors.ErrorCode
		wantHint string
	}{
		{"rate limit", errors.New(errors.CodeRateLimit, "slow down", nil), errors.CodeRateLimit, "llm.fallback_models"},
		{"missing profile", fmt.Errorf("spawn: %w", errors.New(errors.CodeProfileNotFound, "no zilla", nil)), errors.CodeProfileNotFound, "steward agents create"},
		{"plain error", stderrors.New("boom"), errors.CodeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := WrapError(tt.err)
			if ce.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", ce.Code, tt.wantCode)
			}
			if !strings.Contains(ce.Hint, tt.wantHint) {
				t.Errorf("hint %q does not mention %q", ce.Hint, tt.wantHint)
			}
		})
	}
}

func TestWrapErrorKeepsCLIError(t *testing.T) {
	orig := NewInvalidArgumentError("--task", "a task is required")
	if got := WrapError(fmt.Errorf("wrapped: %w", orig)); got != orig {
		t.Errorf("expected the original CLIError back")
	}
	if WrapError(nil) != nil {
		t.Errorf("WrapError(nil) must be nil")
	}
}

func TestInvalidArgumentNamesArgument(t *testing.T) {
	var buf bytes.Buffer
	NewInvalidArgumentError("--output", "an output path is required").PrintError(&buf, false)
	if want := "Error [Invalid Input]: invalid argument --output: an output path is required"; !strings.Contains(buf.String(), want) {
		t.Errorf("output %q missing %q", buf.String(), want)
	}
}

func TestPrintErrorText(t *testing.T) {
	var buf bytes.Buffer
	NewConfigError(stderrors.New("yaml: line 3"), "steward.yaml").PrintError(&buf, false)
	out := buf.String()
	for _, want := range []string{"Error [Invalid Input]: configuration error", "Cause: yaml: line 3", "Hint: check steward.yaml"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestFormatErrorCode(t *testing.T) {
	tests := map[errors.ErrorCode]string{
		errors.CodeInvalidInput:     "Invalid Input",
		errors.CodeProfileNotFound:  "Profile Not Found",
		errors.CodeUnknownOperation: "Unknown Operation",
		errors.CodeLLMError:         "LLM Error",
		errors.CodeToolFailure:      "Operation Failure",
		"":                          "",
	}
	for code, want := range tests {
		if got := FormatErrorCode(code); got != want {
			t.Errorf("FormatErrorCode(%q) = %q, want %q", code, got, want)
		}
	}
}
