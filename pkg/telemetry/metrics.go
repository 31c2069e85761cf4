// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/steward/pkg/errors"
)

// Metrics holds the orchestration instruments. All methods are safe on a nil
// receiver so components can be built without telemetry.
type Metrics struct {
	operations       metric.Int64Counter
	operationLatency metric.Float64Histogram
	guardrailBlocks  metric.Int64Counter
	loopBlocks       metric.Int64Counter
	retries          metric.Int64Counter
	fallbacks        metric.Int64Counter
	delegations      metric.Int64Counter
	workflowSteps    metric.Int64Counter
	memoryLookups    metric.Int64Counter
	errorCounter     metric.Int64Counter
	breakerState     metric.Int64Gauge
}

// NewMetrics creates the instruments on meter, or on the global steward meter
// when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.operations, "steward.operations.total", "Registry calls by operation and outcome"},
		{&m.guardrailBlocks, "steward.guardrail.blocks", "Top-level calls blocked by the guardrail"},
		{&m.loopBlocks, "steward.loop.blocks", "Calls blocked by the loop detector"},
		{&m.retries, "steward.model.retries", "Model call retries by error class"},
		{&m.fallbacks, "steward.model.fallbacks", "Model fallbacks by source and target model"},
		{&m.delegations, "steward.delegations.total", "Delegated jobs by profile and final status"},
		{&m.workflowSteps, "steward.workflow.steps", "Workflow steps by outcome"},
		{&m.memoryLookups, "steward.memory.lookups", "Memory injector lookups by cache outcome"},
		{&m.errorCounter, "steward.errors.total", "Errors by code and component"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	m.operationLatency, err = meter.Float64Histogram(
		"steward.operation.duration",
		metric.WithDescription("Registry call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerState, err = meter.Int64Gauge(
		"steward.circuitbreaker.state",
		metric.WithDescription("Circuit breaker state per component (0=open, 1=half-open, 2=closed)"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordOperation counts a registry call and records its latency.
func (m *Metrics) RecordOperation(ctx context.Context, name string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrOperationName, name),
		attribute.Bool(AttrOperationSuccess, success),
	)
	m.operations.Add(ctx, 1, attrs)
	m.operationLatency.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// RecordGuardrailBlock counts a guardrail rejection.
func (m *Metrics) RecordGuardrailBlock(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.guardrailBlocks.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOperationName, name)))
}

// RecordLoopBlock counts a loop detector rejection.
func (m *Metrics) RecordLoopBlock(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.loopBlocks.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOperationName, name)))
}

// RecordRetry counts a model retry.
func (m *Metrics) RecordRetry(ctx context.Context, class string) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrErrorClass, class)))
}

// RecordFallback counts a switch from one model to the next.
func (m *Metrics) RecordFallback(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrFallbackFrom, from),
		attribute.String(AttrFallbackTo, to),
	))
}

// RecordDelegation counts a finished delegated job.
func (m *Metrics) RecordDelegation(ctx context.Context, profileID, status string) {
	if m == nil {
		return
	}
	m.delegations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProfileID, profileID),
		attribute.String(AttrJobStatus, status),
	))
}

// RecordWorkflowStep counts a finished workflow step.
func (m *Metrics) RecordWorkflowStep(ctx context.Context, workflow string, success bool) {
	if m == nil {
		return
	}
	m.workflowSteps.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrWorkflowName, workflow),
		attribute.Bool(AttrOperationSuccess, success),
	))
}

// RecordMemoryLookup counts a memory injector lookup.
func (m *Metrics) RecordMemoryLookup(ctx context.Context, cacheHit bool, hits int) {
	if m == nil {
		return
	}
	m.memoryLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool(AttrMemoryCacheHit, cacheHit),
		attribute.Bool("steward.memory.found", hits > 0),
	))
}

// RecordError increments the error counter for err's code and the component.
// A StewardError's attributes are also set on the span in ctx.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	code, recoverable := "UNKNOWN", "unknown"
	if errors.CodeOf(err) != "" {
		se := errors.AsStewardError(err)
		code, recoverable = string(se.Code), se.RecoverableString()
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(ErrorAttributes(se)...)
		}
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", code),
		attribute.String("component", component),
		attribute.String("recoverable", recoverable),
	))
}

// RecordCircuitBreakerState records the circuit breaker state (0=open, 1=half-open, 2=closed).
func (m *Metrics) RecordCircuitBreakerState(ctx context.Context, component string, state int64) {
	if m == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(attribute.String("component", component)))
}
