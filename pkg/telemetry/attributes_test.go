// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jllopis/steward/pkg/errors"
)

func TestOperationAttributes(t *testing.T) {
	attrs := OperationAttributes("read_file", "top-level", 12.5, true)
	assertAttributes(t, attrs, map[string]any{
		AttrOperationName:       "read_file",
		AttrRegistryRole:        "top-level",
		AttrOperationDurationMs: 12.5,
		AttrOperationSuccess:    true,
	})
}

func TestErrorAttributes(t *testing.T) {
	se := errors.New(errors.CodeTimeout, "slow", nil).
		WithAttribute("b.key", "2").
		WithAttribute("a.key", "1")
	attrs := ErrorAttributes(se)
	var keys []string
	for _, a := range attrs {
		keys = append(keys, string(a.Key))
	}
	if strings.Join(keys, ",") != "error.code,a.key,b.key" {
		t.Errorf("unexpected attribute order %v", keys)
	}
	if ErrorAttributes(nil) != nil {
		t.Errorf("nil error has no attributes")
	}
}

func TestOperationAttributesMinimal(t *testing.T) {
	attrs := OperationAttributes("bash", "", 0, false)
	if len(attrs) != 2 {
		t.Errorf("expected 2 attributes, got %d", len(attrs))
	}
}

func TestOperationArgsResultTruncation(t *testing.T) {
	long := strings.Repeat("x", 600)
	attrs := OperationArgsResult(long, "ok", 0)
	for _, a := range attrs {
		if string(a.Key) == AttrOperationArgs && len(a.Value.AsString()) != 503 {
			t.Errorf("expected truncation to 500 + ellipsis, got %d", len(a.Value.AsString()))
		}
	}
	if got := OperationArgsResult("", "", 10); len(got) != 0 {
		t.Errorf("expected no attributes for empty input, got %d", len(got))
	}
}

func TestDelegationAttributes(t *testing.T) {
	attrs := DelegationAttributes("job_1", "zilla", "out.json", "completed")
	assertAttributes(t, attrs, map[string]any{
		AttrJobID:      "job_1",
		AttrProfileID:  "zilla",
		AttrOutputPath: "out.json",
		AttrJobStatus:  "completed",
	})
}

func TestWorkflowAttributes(t *testing.T) {
	attrs := WorkflowAttributes("workflow_1", "blog", 2, 3)
	assertAttributes(t, attrs, map[string]any{
		AttrWorkflowID:    "workflow_1",
		AttrWorkflowName:  "blog",
		AttrWorkflowStep:  2,
		AttrWorkflowSteps: 3,
	})
	if len(WorkflowAttributes("w", "n", 0, 3)) != 3 {
		t.Error("step 0 should be omitted")
	}
}

func TestLLMAttributes(t *testing.T) {
	attrs := append(LLMAttributes("qwen3", "ollama", 4, 1), LLMUsageAttributes(10, 5)...)
	assertAttributes(t, attrs, map[string]any{
		AttrLLMModel:        "qwen3",
		AttrLLMProvider:     "ollama",
		AttrLLMMessages:     4,
		AttrLLMToolCalls:    1,
		AttrLLMTokensInput:  10,
		AttrLLMTokensOutput: 5,
		AttrLLMTokensTotal:  15,
	})
}

func TestRetryAttributes(t *testing.T) {
	assertAttributes(t, RetryAttributes("m1", "rate_limited", 2), map[string]any{
		AttrErrorClass:   "rate_limited",
		AttrRetryAttempt: 2,
		AttrLLMModel:     "m1",
	})
}

// assertAttributes checks that expected key-value pairs exist in attrs
func assertAttributes(t *testing.T, attrs []attribute.KeyValue, expected map[string]any) {
	t.Helper()

	found := make(map[string]attribute.KeyValue)
	for _, attr := range attrs {
		found[string(attr.Key)] = attr
	}

	for key, expectedVal := range expected {
		attr, ok := found[key]
		if !ok {
			t.Errorf("missing attribute %s", key)
			continue
		}

		var actualVal any
		switch attr.Value.Type() {
		case attribute.STRING:
			actualVal = attr.Value.AsString()
		case attribute.INT64:
			actualVal = int(attr.Value.AsInt64())
		case attribute.FLOAT64:
			actualVal = attr.Value.AsFloat64()
		case attribute.BOOL:
			actualVal = attr.Value.AsBool()
		}

		if actualVal != expectedVal {
			t.Errorf("attribute %s: got %v, want %v", key, actualVal, expectedVal)
		}
	}
}
