// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/jllopis/steward/pkg/errors"
)

// InstrumentationName names the tracer and meter used by steward packages.
const InstrumentationName = "github.com/jllopis/steward"

// Attribute keys for steward spans and metrics.
// These follow OpenTelemetry naming conventions where applicable.
const (
	AttrRunID = "steward.run.id"

	// Registry and operations
	AttrOperationName       = "steward.operation.name"
	AttrOperationDurationMs = "steward.operation.duration_ms"
	AttrOperationSuccess    = "steward.operation.success"
	AttrOperationArgs       = "steward.operation.arguments"
	AttrOperationResult     = "steward.operation.result"
	AttrRegistryRole        = "steward.registry.role"
	AttrBlockReason         = "steward.block.reason"

	// Delegation
	AttrProfileID  = "steward.profile.id"
	AttrJobID      = "steward.job.id"
	AttrJobStatus  = "steward.job.status"
	AttrOutputPath = "steward.job.output_path"
	AttrOutputSize = "steward.job.output_bytes"

	// Workflow
	AttrWorkflowID    = "steward.workflow.id"
	AttrWorkflowName  = "steward.workflow.name"
	AttrWorkflowStep  = "steward.workflow.step"
	AttrWorkflowSteps = "steward.workflow.total_steps"

	// Memory injection
	AttrMemoryCacheHit = "steward.memory.cache_hit"

	// Resilience
	AttrRetryAttempt = "steward.retry.attempt"
	AttrErrorClass   = "steward.error.class"
	AttrFallbackFrom = "steward.fallback.from"
	AttrFallbackTo   = "steward.fallback.to"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
)

// Tracer returns the steward tracer from the global provider.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// OperationAttributes returns attributes for a registry call span.
func OperationAttributes(name, role string, durationMs float64, success bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrOperationName, name),
		attribute.Bool(AttrOperationSuccess, success),
	}
	if role != "" {
		attrs = append(attrs, attribute.String(AttrRegistryRole, role))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrOperationDurationMs, durationMs))
	}
	return attrs
}

// OperationArgsResult returns arguments and result attributes, truncated to
// maxLen. Empty values are omitted.
func OperationArgsResult(args, result string, maxLen int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if args != "" {
		attrs = append(attrs, attribute.String(AttrOperationArgs, Truncate(args, maxLen)))
	}
	if result != "" {
		attrs = append(attrs, attribute.String(AttrOperationResult, Truncate(result, maxLen)))
	}
	return attrs
}

// DelegationAttributes returns attributes for a delegated job span.
func DelegationAttributes(jobID, profileID, outputPath, status string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrJobID, jobID),
		attribute.String(AttrProfileID, profileID),
	}
	if outputPath != "" {
		attrs = append(attrs, attribute.String(AttrOutputPath, outputPath))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(AttrJobStatus, status))
	}
	return attrs
}

// WorkflowAttributes returns attributes for workflow spans. step is 1-based;
// zero omits it.
func WorkflowAttributes(workflowID, name string, step, total int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrWorkflowID, workflowID),
		attribute.String(AttrWorkflowName, name),
		attribute.Int(AttrWorkflowSteps, total),
	}
	if step > 0 {
		attrs = append(attrs, attribute.Int(AttrWorkflowStep, step))
	}
	return attrs
}

// LLMAttributes returns attributes for model call spans.
func LLMAttributes(model, provider string, msgCount, toolCallCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if toolCallCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCallCount))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	return attrs
}

// RetryAttributes returns attributes for a retried model attempt.
func RetryAttributes(model, class string, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrErrorClass, class),
		attribute.Int(AttrRetryAttempt, attempt),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	return attrs
}

// ErrorAttributes returns the error code and the error's own attributes,
// sorted by key.
func ErrorAttributes(se *errors.StewardError) []attribute.KeyValue {
	if se == nil {
		return nil
	}
	attrs := []attribute.KeyValue{attribute.String("error.code", string(se.Code))}
	for _, k := range slices.Sorted(maps.Keys(se.Attributes)) {
		attrs = append(attrs, attribute.String(k, se.Attributes[k]))
	}
	return attrs
}

// Truncate shortens s to maxLen bytes plus an ellipsis. maxLen <= 0 means 500.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 500
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
