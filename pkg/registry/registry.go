// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the capability registry: the dispatcher that
// holds operations, offers their descriptors to the model, enforces the
// top-level guardrail and runs the hook pipeline around every call.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/errors"
	"github.com/jllopis/steward/pkg/governance"
	"github.com/jllopis/steward/pkg/hooks"
	"github.com/jllopis/steward/pkg/llm"
	"github.com/jllopis/steward/pkg/resilience"
	"github.com/jllopis/steward/pkg/telemetry"
)

// Role is fixed when a registry is built.
type Role string

const (
	// RoleTopLevel serves the primary conversation and enforces the guardrail.
	RoleTopLevel Role = "top-level"
	// RoleDelegated serves a sub-agent. It never applies the guardrail.
	RoleDelegated Role = "delegated"
)

// Registry holds operations in registration order.
type Registry struct {
	role      Role
	guardrail *governance.Guardrail
	hooks     *hooks.Pipeline
	timeout   time.Duration
	unbounded map[string]bool
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	events    core.EventEmitter
	tracer    trace.Tracer

	mu    sync.RWMutex
	ops   []core.Operation
	index map[string]core.Operation
}

// Option configures a Registry.
type Option func(*Registry)

// WithGuardrail sets the deny-set. Only top-level registries consult it.
func WithGuardrail(g *governance.Guardrail) Option {
	return func(r *Registry) { r.guardrail = g }
}

// WithHooks sets the hook pipeline.
func WithHooks(p *hooks.Pipeline) Option {
	return func(r *Registry) { r.hooks = p }
}

// WithTimeout bounds each operation call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithoutTimeout exempts the named operations from the WithTimeout bound.
// Operations that run whole sub-conversations use it.
func WithoutTimeout(names ...string) Option {
	return func(r *Registry) {
		if r.unbounded == nil {
			r.unbounded = make(map[string]bool)
		}
		for _, n := range names {
			r.unbounded[n] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics records calls and guardrail blocks.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithEvents receives operation.blocked events.
func WithEvents(e core.EventEmitter) Option {
	return func(r *Registry) {
		if e != nil {
			r.events = e
		}
	}
}

// WithOperations registers ops at construction. Duplicate names panic.
func WithOperations(ops ...core.Operation) Option {
	return func(r *Registry) {
		if err := r.Register(ops...); err != nil {
			panic(err)
		}
	}
}

// New creates an empty registry with the given role.
func New(role Role, opts ...Option) *Registry {
	r := &Registry{
		role:   role,
		logger: slog.Default(),
		events: core.NoopEventEmitter{},
		tracer: telemetry.Tracer(),
		index:  make(map[string]core.Operation),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Role returns the registry role.
func (r *Registry) Role() Role { return r.role }

// Guardrail returns the configured guardrail, which may be nil.
func (r *Registry) Guardrail() *governance.Guardrail { return r.guardrail }

// Hooks returns the hook pipeline, which may be nil.
func (r *Registry) Hooks() *hooks.Pipeline { return r.hooks }

// Register adds operations. Names must be non-empty and unique.
func (r *Registry) Register(ops ...core.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range ops {
		name := op.Descriptor().Name
		if name == "" {
			return errors.New(errors.CodeInvalidInput, "operation name is required", nil)
		}
		if _, exists := r.index[name]; exists {
			return errors.Newf(errors.CodeInvalidInput, "operation %q already registered", name)
		}
		r.ops = append(r.ops, op)
		r.index[name] = op
	}
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[name]
	return ok
}

// Get returns the operation registered under name.
func (r *Registry) Get(name string) (core.Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.index[name]
	return op, ok
}

// Names returns operation names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.ops))
	for i, op := range r.ops {
		names[i] = op.Descriptor().Name
	}
	return names
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}

// Definitions returns the descriptors offered to the model. A top-level
// registry leaves out denied operations.
func (r *Registry) Definitions() []core.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Descriptor, 0, len(r.ops))
	for _, op := range r.ops {
		desc := op.Descriptor()
		if r.blocks(desc.Name) {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// ToolDefinitions returns Definitions in the model backend's tool format.
func (r *Registry) ToolDefinitions() []llm.Tool {
	defs := r.Definitions()
	tools := make([]llm.Tool, len(defs))
	for i, d := range defs {
		schema := d.InputSchema
		if schema == nil {
			schema = core.ObjectSchema(map[string]any{})
		}
		tools[i] = llm.Tool{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  schema,
			},
		}
	}
	return tools
}

// Restrict builds a delegated registry holding the operations of r whose
// names are in whitelist. Unknown names are dropped. The new registry shares
// the operation instances, timeout and observability of r, and applies no
// guardrail. It gets a fork of r's hooks, so per-conversation state such as
// the loop window starts empty. Extra options override the inherited
// settings.
func (r *Registry) Restrict(whitelist []string, opts ...Option) *Registry {
	child := New(RoleDelegated,
		WithHooks(r.hooks.Fork()),
		WithTimeout(r.timeout),
		WithLogger(r.logger),
		WithMetrics(r.metrics),
		WithEvents(r.events),
	)
	for _, opt := range opts {
		opt(child)
	}
	if len(whitelist) == 0 {
		return child
	}

	filter := governance.NewToolFilter(governance.WithAllowlist(whitelist))
	allowed := filter.FilterTools(context.Background(), r.Names())

	r.mu.RLock()
	ops := make([]core.Operation, 0, len(allowed))
	for _, name := range allowed {
		ops = append(ops, r.index[name])
	}
	r.mu.RUnlock()

	_ = child.Register(ops...)
	return child
}

func (r *Registry) blocks(name string) bool {
	return r.role == RoleTopLevel && r.guardrail.Denied(name)
}

// Execute runs one call: guardrail, pre-hooks, the operation, post-hooks.
// Every failure comes back as an error-flagged result.
func (r *Registry) Execute(ctx context.Context, name string, args core.Args) core.Result {
	ctx, span := r.tracer.Start(ctx, "registry.execute", trace.WithAttributes(
		attribute.String(telemetry.AttrOperationName, name),
		attribute.String(telemetry.AttrRegistryRole, string(r.role)),
	))
	defer span.End()

	if r.blocks(name) {
		r.logger.WarnContext(ctx, "registry.guardrail.blocked", slog.String("operation", name))
		r.metrics.RecordGuardrailBlock(ctx, name)
		span.SetAttributes(attribute.String(telemetry.AttrBlockReason, "guardrail"))
		span.SetStatus(codes.Error, "guardrail")
		r.emitBlocked(ctx, name, "guardrail")
		return core.Failure(r.guardrail.Message(name))
	}

	if args == nil {
		args = core.Args{}
	}
	args, abort := r.hooks.Before(ctx, name, args)
	if abort != nil {
		r.logger.InfoContext(ctx, "registry.call.aborted", slog.String("operation", name))
		span.SetAttributes(attribute.String(telemetry.AttrBlockReason, "hook"))
		span.SetStatus(codes.Error, "aborted by hook")
		r.emitBlocked(ctx, name, "hook")
		return *abort
	}

	start := time.Now()
	result := r.invoke(ctx, name, args)
	elapsed := time.Since(start)

	r.hooks.After(ctx, name, args, result, elapsed)

	if !result.IsError && r.role == RoleTopLevel && r.guardrail.RequiresVerification(name) {
		result.Content += verificationReminder(name)
	}

	r.metrics.RecordOperation(ctx, name, elapsed, !result.IsError)
	span.SetAttributes(telemetry.OperationAttributes(name, string(r.role), float64(elapsed.Microseconds())/1000, !result.IsError)...)
	if span.IsRecording() {
		raw, _ := json.Marshal(args)
		span.SetAttributes(telemetry.OperationArgsResult(string(raw), result.Content, 0)...)
	}
	if result.IsError {
		span.SetStatus(codes.Error, telemetry.Truncate(result.Content, 200))
	}
	r.logger.DebugContext(ctx, "registry.call.done",
		slog.String("operation", name),
		slog.Bool("success", !result.IsError),
		slog.Duration("duration", elapsed),
	)
	return result
}

func (r *Registry) invoke(ctx context.Context, name string, args core.Args) core.Result {
	op, ok := r.Get(name)
	if !ok {
		r.logger.WarnContext(ctx, "registry.operation.unknown", slog.String("operation", name))
		r.metrics.RecordError(ctx, errors.Newf(errors.CodeUnknownOperation, "unknown operation %q", name), "registry")
		return core.Failuref("Unknown operation: %s", name)
	}
	timeout := r.timeout
	if r.unbounded[name] {
		timeout = 0
	}
	result, err := resilience.WithTimeoutResult(ctx, timeout, func(ctx context.Context) (res core.Result, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = errors.New(errors.CodeToolFailure, fmt.Sprintf("operation panicked: %v", p), nil)
			}
		}()
		return op.Execute(ctx, args), nil
	})
	if err != nil {
		r.metrics.RecordError(ctx, err, "registry")
		return core.Failuref("Operation '%s' failed: %v", name, err)
	}
	return result
}

func (r *Registry) emitBlocked(ctx context.Context, name, reason string) {
	jobID, _ := core.JobID(ctx)
	r.events.Emit(ctx, core.NewEventContext(ctx, core.EventOperationBlocked, string(r.role), jobID, map[string]any{
		"operation": name,
		"reason":    reason,
	}))
}

func verificationReminder(name string) string {
	return fmt.Sprintf("\n\n[Verification required] Confirm that '%s' had the intended effect before reporting it as done.", name)
}
