// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package delegation runs tasks inside capability-restricted
// sub-conversations. A delegated agent is described by a Profile, gets a
// registry limited to the profile's operations, and must leave a verified
// output artifact behind for the job to count as completed.
package delegation

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

	"github.com/jllopis/steward/pkg/agent"
	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/errors"
	"github.com/jllopis/steward/pkg/governance"
	"github.com/jllopis/steward/pkg/llm"
	"github.com/jllopis/steward/pkg/registry"
	"github.com/jllopis/steward/pkg/telemetry"
)

// DefaultMaxIterations bounds a delegated conversation.
const DefaultMaxIterations = 25

// SpawnRequest describes one delegation.
type SpawnRequest struct {
	ProfileID  string
	Task       string
	OutputPath string
	// JobID is optional. A fresh id is allocated when empty.
	JobID string
}

// Outcome is what Spawn reports back for a registered job.
type Outcome struct {
	Job     Job
	Profile *Profile
	// Size is the verified artifact size in bytes.
	Size int64
	// Reply is the final text of the sub-conversation.
	Reply string
	// Err is the sub-conversation error, if any.
	Err error
}

// Succeeded reports whether the job completed.
func (o *Outcome) Succeeded() bool {
	return o.Job.Status == core.StatusCompleted
}

// String renders the report returned to the calling conversation.
func (o *Outcome) String() string {
	switch {
	case o.Succeeded():
		return fmt.Sprintf("%s Agent '%s' completed successfully!\n\nJob: %s\nOutput: %s (%d bytes)\n\nAgent: %s\nRole: %s",
			core.StatusCompleted.Icon(), o.Profile.Name, o.Job.ID, o.Job.OutputPath, o.Size, o.Profile.ID, o.Profile.Role)
	case o.Err != nil:
		return fmt.Sprintf("%s Agent '%s' failed during execution\n\nError: %v\n\nJob: %s\nExpected output: %s\nReason: %s",
			core.StatusFailed.Icon(), o.Profile.Name, o.Err, o.Job.ID, o.Job.OutputPath, o.Job.Reason)
	default:
		return fmt.Sprintf("%s Agent '%s' did not produce valid output\n\nJob: %s\nExpected output: %s\nReason: %s\n\nSub-agent result: %s",
			core.StatusFailed.Icon(), o.Profile.Name, o.Job.ID, o.Job.OutputPath, o.Job.Reason, o.Reply)
	}
}

// Engine loads profiles, runs delegated conversations and tracks jobs.
type Engine struct {
	base          *registry.Registry
	provider      llm.Provider
	jobs          *JobRegistry
	storageDir    string
	workspace     string
	model         string
	maxIterations int
	logger        *slog.Logger
	metrics       *telemetry.Metrics
	events        core.EventEmitter
	policy        governance.PolicyEngine
	tracer        trace.Tracer
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithJobs shares a job registry between engines and operations.
func WithJobs(j *JobRegistry) Option {
	return func(e *Engine) { e.jobs = j }
}

// WithWorkspace sets the directory relative output paths resolve against.
// It defaults to the storage directory.
func WithWorkspace(dir string) Option {
	return func(e *Engine) { e.workspace = dir }
}

// WithModel sets the model used for delegated conversations.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithMaxIterations bounds each delegated conversation.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records delegation outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEvents receives delegation started and finished events.
func WithEvents(em core.EventEmitter) Option {
	return func(e *Engine) { e.events = em }
}

// WithPolicy checks every spawn as an agent action before a job is
// registered.
func WithPolicy(p governance.PolicyEngine) Option {
	return func(e *Engine) { e.policy = p }
}

// NewEngine creates an engine. base holds every operation a delegated agent
// could ever be granted; each spawn restricts it to the profile's list.
func NewEngine(base *registry.Registry, provider llm.Provider, storageDir string, opts ...Option) *Engine {
	e := &Engine{
		base:          base,
		provider:      provider,
		storageDir:    storageDir,
		maxIterations: DefaultMaxIterations,
		logger:        slog.Default(),
		events:        core.NoopEventEmitter{},
		tracer:        telemetry.Tracer(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.jobs == nil {
		e.jobs = NewJobRegistry()
	}
	if e.base == nil {
		e.base = registry.New(registry.RoleDelegated)
	}
	if e.workspace == "" {
		e.workspace = storageDir
	}
	return e
}

// Jobs returns the job registry.
func (e *Engine) Jobs() *JobRegistry { return e.jobs }

// StorageDir returns the directory holding agents/ and tasks/.
func (e *Engine) StorageDir() string { return e.storageDir }

// LoadProfile loads a profile from the engine's storage directory.
func (e *Engine) LoadProfile(id string) (*Profile, error) {
	return LoadProfile(e.storageDir, id)
}

// ResolvePath maps a declared output path to the file on disk.
func (e *Engine) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(e.workspace, p)
}

// Spawn runs one delegation. Invalid requests and profile failures return
// an error and register no job. Once a job is registered, the result is
// always an Outcome whose job is completed or failed.
func (e *Engine) Spawn(ctx context.Context, req SpawnRequest) (*Outcome, error) {
	switch {
	case strings.TrimSpace(req.Task) == "":
		return nil, errors.New(errors.CodeInvalidInput, "Missing required parameter: task", nil)
	case strings.TrimSpace(req.OutputPath) == "":
		return nil, errors.New(errors.CodeInvalidInput, "Missing required parameter: output_path", nil)
	}

	profile, err := e.LoadProfile(req.ProfileID)
	if err != nil {
		e.logger.ErrorContext(ctx, "delegation.profile.error",
			slog.String("profile", req.ProfileID),
			slog.String("error", err.Error()),
		)
		e.metrics.RecordError(ctx, err, "delegation")
		return nil, err
	}
	if e.policy != nil {
		d := e.policy.Evaluate(ctx, governance.Action{Type: governance.ActionAgent, Name: profile.ID})
		if d.IsDenied() {
			e.logger.WarnContext(ctx, "delegation.policy.denied",
				slog.String("profile", profile.ID),
				slog.String("rule", d.RuleID),
			)
			msg := fmt.Sprintf("Policy denied spawning agent '%s'", profile.ID)
			if d.Reason != "" {
				msg += ": " + d.Reason
			}
			return nil, errors.New(errors.CodeGuardrail, msg, nil).WithContext("rule", d.RuleID)
		}
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = NewJobID(e.now())
	}
	if err := os.MkdirAll(filepath.Join(e.storageDir, "tasks", jobID), 0o755); err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to create job folder", err).WithContext("job_id", jobID)
	}
	job, err := e.jobs.Register(Job{
		ID:         jobID,
		ProfileID:  profile.ID,
		Name:       profile.Name,
		Role:       profile.Role,
		Task:       req.Task,
		OutputPath: req.OutputPath,
		StartedAt:  e.now(),
	})
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "delegation.spawn",
		trace.WithAttributes(telemetry.DelegationAttributes(jobID, profile.ID, req.OutputPath, "")...))
	defer span.End()
	ctx = core.WithJobID(ctx, jobID)

	e.logger.InfoContext(ctx, "delegation.job.started",
		slog.String("job_id", jobID),
		slog.String("profile", profile.ID),
		slog.String("output_path", req.OutputPath),
	)
	e.events.Emit(ctx, core.NewEventContext(ctx, core.EventDelegationStarted, "delegation", jobID, map[string]any{
		"profile":     profile.ID,
		"output_path": req.OutputPath,
	}))

	restricted := e.base.Restrict(profile.Tools)
	if dropped := len(profile.Tools) - restricted.Len(); dropped > 0 {
		e.logger.DebugContext(ctx, "delegation.tools.dropped",
			slog.String("job_id", jobID),
			slog.Int("dropped", dropped),
		)
	}

	loop := agent.NewLoop(e.provider, restricted,
		agent.WithModel(e.model),
		agent.WithMaxIterations(e.maxIterations),
		agent.WithSystemPrompt(SystemLine(profile, restricted.Names())),
		agent.WithLogger(e.logger),
	)
	out := &Outcome{Profile: profile}
	result, runErr := loop.Run(ctx, BuildPrompt(profile, req.Task, req.OutputPath))
	if result != nil {
		out.Reply = result.Text
	}
	out.Err = runErr

	size, verr := VerifyOutput(e.ResolvePath(req.OutputPath), profile.Format())
	switch {
	case verr == nil:
		out.Size = size
		_ = e.jobs.Complete(jobID, fmt.Sprintf("Output saved to %s (%d bytes)", req.OutputPath, size))
		out.Err = nil
	case runErr != nil:
		_ = e.jobs.Fail(jobID, "Sub-agent error: "+runErr.Error())
	default:
		_ = e.jobs.Fail(jobID, Reason(verr))
	}
	job, _ = e.jobs.Get(jobID)
	out.Job = job

	status := string(job.Status)
	span.SetAttributes(
		attribute.String(telemetry.AttrJobStatus, status),
		attribute.Int64(telemetry.AttrOutputSize, out.Size),
	)
	if !out.Succeeded() {
		span.SetStatus(codes.Error, job.Reason)
		e.logger.WarnContext(ctx, "delegation.job.failed",
			slog.String("job_id", jobID),
			slog.String("profile", profile.ID),
			slog.String("reason", job.Reason),
		)
	} else {
		e.logger.InfoContext(ctx, "delegation.job.completed",
			slog.String("job_id", jobID),
			slog.String("profile", profile.ID),
			slog.Int64("bytes", out.Size),
		)
	}
	e.metrics.RecordDelegation(ctx, profile.ID, status)
	e.events.Emit(ctx, core.NewEventContext(ctx, core.EventDelegationFinished, "delegation", jobID, map[string]any{
		"profile": profile.ID,
		"status":  status,
		"reason":  job.Reason,
		"bytes":   out.Size,
	}))
	return out, nil
}
