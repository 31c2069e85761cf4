// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow runs ordered chains of delegations. Steps run strictly
// in sequence, later steps may read earlier artifacts, and the first failed
// step halts the run.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/delegation"
	"github.com/jllopis/steward/pkg/errors"
	"github.com/jllopis/steward/pkg/telemetry"
)

// Delegator runs single delegations. *delegation.Engine implements it.
type Delegator interface {
	Spawn(ctx context.Context, req delegation.SpawnRequest) (*delegation.Outcome, error)
	LoadProfile(id string) (*delegation.Profile, error)
	ResolvePath(p string) string
	StorageDir() string
}

// Engine runs workflows over a Delegator.
type Engine struct {
	delegator Delegator
	audit     AuditStore
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	events    core.EventEmitter
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAudit records every step outcome in store.
func WithAudit(store AuditStore) Option {
	return func(e *Engine) { e.audit = store }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics counts step outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEvents receives step and finish events.
func WithEvents(em core.EventEmitter) Option {
	return func(e *Engine) { e.events = em }
}

// NewEngine creates a workflow engine.
func NewEngine(d Delegator, opts ...Option) *Engine {
	e := &Engine{
		delegator: d,
		audit:     NewMemoryAuditStore(),
		logger:    slog.Default(),
		events:    core.NoopEventEmitter{},
		tracer:    telemetry.Tracer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Audit returns the audit store.
func (e *Engine) Audit() AuditStore { return e.audit }

// Run validates steps, then executes them in order until one fails.
// Validation errors return before any step runs; step failures are
// reported in the returned Report.
func (e *Engine) Run(ctx context.Context, name string, steps []Step) (*Report, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalid("Missing required parameter: name")
	}
	if err := Validate(steps); err != nil {
		return nil, err
	}

	id := delegation.NewID("workflow", e.now())
	if err := os.MkdirAll(filepath.Join(e.delegator.StorageDir(), "tasks", id), 0o755); err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to create workflow folder", err).WithContext("workflow_id", id)
	}

	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(telemetry.WorkflowAttributes(id, name, 0, len(steps))...))
	defer span.End()

	e.logger.InfoContext(ctx, "workflow.started",
		slog.String("workflow_id", id),
		slog.String("name", name),
		slog.Int("steps", len(steps)),
	)

	report := &Report{WorkflowID: id, Name: name, Total: len(steps)}
	for i, step := range steps {
		step.Position = i + 1
		started := e.now()
		res, ok := e.runStep(ctx, id, name, len(steps), step)

		status := string(core.StatusCompleted)
		errText := ""
		if !ok {
			status = string(core.StatusFailed)
			errText = res.Message
		}
		e.record(ctx, AuditEvent{
			WorkflowID: id,
			RunID:      runID,
			Name:       name,
			Step:       step.Position,
			AgentID:    step.AgentID,
			Status:     status,
			Output:     map[string]any{"output_path": step.OutputPath, "bytes": res.Bytes},
			Error:      errText,
			StartedAt:  started,
			FinishedAt: e.now(),
		})
		e.metrics.RecordWorkflowStep(ctx, name, ok)
		e.events.Emit(ctx, core.NewEventContext(ctx, core.EventWorkflowStep, "workflow", id, map[string]any{
			"step":    step.Position,
			"total":   len(steps),
			"agent":   step.AgentID,
			"status":  status,
			"message": res.Message,
		}))

		if !ok {
			report.Failed = &res
			e.logger.ErrorContext(ctx, "workflow.step.failed",
				slog.String("workflow_id", id),
				slog.Int("step", step.Position),
				slog.String("error", res.Message),
			)
			break
		}
		report.Completed = append(report.Completed, res)
		e.logger.InfoContext(ctx, "workflow.step.completed",
			slog.String("workflow_id", id),
			slog.Int("step", step.Position),
			slog.Int("total", len(steps)),
		)
	}

	status := string(core.StatusCompleted)
	if !report.Succeeded() {
		status = string(core.StatusFailed)
		span.SetStatus(codes.Error, report.Failed.Message)
	}
	span.SetAttributes(attribute.Int("steward.workflow.completed_steps", len(report.Completed)))
	e.events.Emit(ctx, core.NewEventContext(ctx, core.EventWorkflowFinished, "workflow", id, map[string]any{
		"name":      name,
		"status":    status,
		"completed": len(report.Completed),
		"total":     len(steps),
	}))
	return report, nil
}

func (e *Engine) runStep(ctx context.Context, workflowID, name string, total int, step Step) (StepResult, bool) {
	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(telemetry.WorkflowAttributes(workflowID, name, step.Position, total)...))
	defer span.End()

	res := StepResult{Position: step.Position, AgentID: step.AgentID, OutputPath: step.OutputPath}
	fail := func(format string, args ...any) (StepResult, bool) {
		res.Message = fmt.Sprintf(format, args...)
		span.SetStatus(codes.Error, res.Message)
		return res, false
	}

	if err := ctx.Err(); err != nil {
		return fail("Step %d failed: %v", step.Position, err)
	}

	e.logger.InfoContext(ctx, "workflow.step.started",
		slog.String("workflow_id", workflowID),
		slog.Int("step", step.Position),
		slog.String("agent", step.AgentID),
	)
	out, err := e.delegator.Spawn(ctx, delegation.SpawnRequest{
		ProfileID:  step.AgentID,
		Task:       step.taskWithInput(),
		OutputPath: step.OutputPath,
		JobID:      fmt.Sprintf("%s_step%d", workflowID, step.Position),
	})
	if err != nil {
		return fail("Step %d failed: %s", step.Position, delegation.Reason(err))
	}
	if !out.Succeeded() {
		return fail("Step %d failed: %s", step.Position, out.Job.Reason)
	}

	if !step.Verify {
		res.Message = fmt.Sprintf("Step %d completed (verification skipped)", step.Position)
		return res, true
	}

	format := ""
	if p, err := e.delegator.LoadProfile(step.AgentID); err == nil {
		format = p.Format()
	}
	size, err := delegation.VerifyOutput(e.delegator.ResolvePath(step.OutputPath), format)
	if err != nil {
		return fail("Step %d verification failed: %s\nOutput path: %s", step.Position, delegation.Reason(err), step.OutputPath)
	}
	res.Bytes = size
	res.Message = fmt.Sprintf("Step %d completed successfully (%d bytes)", step.Position, size)
	return res, true
}

func (e *Engine) record(ctx context.Context, ev AuditEvent) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "workflow.audit.error",
			slog.String("workflow_id", ev.WorkflowID),
			slog.String("error", err.Error()),
		)
	}
}
