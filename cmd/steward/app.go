// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/jllopis/steward/pkg/config"
	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/delegation"
	"github.com/jllopis/steward/pkg/governance"
	"github.com/jllopis/steward/pkg/hooks"
	"github.com/jllopis/steward/pkg/llm"
	"github.com/jllopis/steward/pkg/mcp"
	"github.com/jllopis/steward/pkg/registry"
	"github.com/jllopis/steward/pkg/resilience"
	"github.com/jllopis/steward/pkg/telemetry"
	"github.com/jllopis/steward/pkg/tools"
	"github.com/jllopis/steward/pkg/workflow"
)

// app is the wired orchestration stack shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	provider llm.Provider

	workspace  *tools.Workspace
	base       *registry.Registry
	top        *registry.Registry
	delegation *delegation.Engine
	factory    *delegation.Factory
	workflows  *workflow.Engine
	injector   *hooks.MemoryInjector

	closers []func() error
}

// newProvider builds the model backend. Tests replace it.
var newProvider = buildProvider

// newApp wires the stack. On failure everything started so far is closed.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *telemetry.Metrics) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	events := loggingEmitter(logger)
	policy := governance.RuleSetFromConfig(cfg.Governance)

	backend, err := newProvider(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.provider = resilience.NewFallbackProvider(backend, cfg.LLM.Model, cfg.LLM.FallbackModels,
		resilience.WithRetrier(resilience.NewRetrier(
			resilience.WithMaxAttempts(cfg.Resilience.MaxAttempts),
			resilience.WithPolicies(networkPolicy(cfg.Resilience), rateLimitPolicy(cfg.Resilience)),
			resilience.WithRetryLogger(logger),
			resilience.WithRetryMetrics(metrics),
		)),
		resilience.WithCooldown(resilience.NewModelCooldown(cfg.Resilience.CooldownBase, cfg.Resilience.CooldownCeiling)),
		resilience.WithFallbackLogger(logger),
		resilience.WithFallbackMetrics(metrics),
		resilience.WithFallbackEvents(events),
	)

	pipeline, err := a.buildHooks(ctx)
	if err != nil {
		return nil, err
	}

	a.workspace, err = tools.NewWorkspace(cfg.Tools.Workspace)
	if err != nil {
		return nil, err
	}
	leaves := tools.Operations(a.workspace)

	if len(cfg.Tools.MCPServers) > 0 {
		pool := mcp.NewPool(logger)
		pool.UsePolicy(policy)
		a.closers = append(a.closers, pool.Close)
		if err := pool.Connect(ctx, mcpServers(cfg.Tools.MCPServers)); err != nil {
			return nil, err
		}
		remote, err := pool.Operations(ctx)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, remote...)
	}

	common := []registry.Option{
		registry.WithHooks(pipeline),
		registry.WithTimeout(cfg.Resilience.OperationTimeout),
		registry.WithLogger(logger),
		registry.WithMetrics(metrics),
		registry.WithEvents(events),
	}
	a.base = registry.New(registry.RoleDelegated, common...)
	if err := a.base.Register(leaves...); err != nil {
		return nil, err
	}

	storage := cfg.Delegation.StorageDir
	a.delegation = delegation.NewEngine(a.base, a.provider, storage,
		delegation.WithWorkspace(a.workspace.Root()),
		delegation.WithModel(cfg.LLM.Model),
		delegation.WithMaxIterations(cfg.Delegation.MaxIterations),
		delegation.WithPolicy(policy),
		delegation.WithLogger(logger),
		delegation.WithMetrics(metrics),
		delegation.WithEvents(events),
	)
	a.factory = delegation.NewFactory(storage)

	audit, err := a.buildAudit()
	if err != nil {
		return nil, err
	}
	a.workflows = workflow.NewEngine(a.delegation,
		workflow.WithAudit(audit),
		workflow.WithLogger(logger),
		workflow.WithMetrics(metrics),
		workflow.WithEvents(events),
	)

	a.top = registry.New(registry.RoleTopLevel, append(common,
		registry.WithGuardrail(governance.GuardrailFromConfig(cfg.Governance)),
		// A delegation runs a whole sub-conversation. Its leaf calls stay
		// bounded through the restricted registry.
		registry.WithoutTimeout(delegation.OpSpawnAgent, workflow.OpExecuteWorkflow),
	)...)
	topOps := append([]core.Operation(nil), leaves...)
	topOps = append(topOps, a.delegation.Operations()...)
	topOps = append(topOps, a.factory.Operation(), a.workflows.Operation())
	if err := a.top.Register(topOps...); err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "app.ready",
		slog.Int("leaf_operations", a.base.Len()),
		slog.Int("top_operations", a.top.Len()),
		slog.String("workspace", a.workspace.Root()),
	)
	return a, nil
}

func (a *app) buildHooks(ctx context.Context) (*hooks.Pipeline, error) {
	cfg := a.cfg.Hooks
	pipeline := hooks.NewPipeline()
	pipeline.AddPre(hooks.NewLoopDetector(
		hooks.WithWindow(cfg.LoopWindow),
		hooks.WithThreshold(cfg.LoopThreshold),
		hooks.WithLoopLogger(a.logger),
		hooks.WithLoopMetrics(a.metrics),
	))

	if cfg.MemoryEnabled {
		store, err := a.buildMemory(ctx)
		if err != nil {
			return nil, err
		}
		if store != nil {
			breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				Name: "memory",
				OnStateChange: func(name string, from, to resilience.CircuitBreakerState) {
					a.logger.Warn("memory.breaker.transition",
						slog.String("from", string(from)),
						slog.String("to", string(to)),
					)
					a.metrics.RecordCircuitBreakerState(context.Background(), name, to.Gauge())
				},
			})
			a.injector = hooks.NewMemoryInjector(store,
				hooks.WithTTL(cfg.MemoryTTL),
				hooks.WithMinText(cfg.MemoryMinText),
				hooks.WithBreaker(breaker),
				hooks.WithMemoryLogger(a.logger),
				hooks.WithMemoryMetrics(a.metrics),
			)
			pipeline.AddPre(a.injector)
		}
	}

	if cfg.ExecLogPath != "" {
		pipeline.AddPost(hooks.NewExecLogger(cfg.ExecLogPath,
			hooks.WithMaxBytes(cfg.ExecLogMaxBytes),
			hooks.WithGenerations(cfg.ExecLogGenerations),
			hooks.WithExecLogLogger(a.logger),
		))
	}
	return pipeline, nil
}

func (a *app) buildAudit() (workflow.AuditStore, error) {
	dsn := a.cfg.Workflow.AuditDSN
	if dsn == "" {
		return workflow.NewMemoryAuditStore(), nil
	}
	store, err := workflow.OpenSQLiteAuditStore(dsn)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// Close releases MCP servers and stores in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func networkPolicy(cfg config.ResilienceConfig) resilience.BackoffPolicy {
	p := resilience.NetworkPolicy()
	if cfg.NetworkInitial > 0 {
		p = resilience.BackoffPolicy{Initial: cfg.NetworkInitial, Max: cfg.NetworkMax, Factor: cfg.NetworkFactor, Jitter: cfg.NetworkJitter}
	}
	return p
}

func rateLimitPolicy(cfg config.ResilienceConfig) resilience.BackoffPolicy {
	p := resilience.RateLimitPolicy()
	if cfg.RateLimitInitial > 0 {
		p = resilience.BackoffPolicy{Initial: cfg.RateLimitInitial, Max: cfg.RateLimitMax, Factor: cfg.RateLimitFactor, Jitter: cfg.RateLimitJitter}
	}
	return p
}

func mcpServers(cfgs []config.MCPServerConfig) []mcp.StdioServer {
	out := make([]mcp.StdioServer, len(cfgs))
	for i, c := range cfgs {
		name := c.Name
		if name == "" {
			name = filepath.Base(c.Command)
		}
		out[i] = mcp.StdioServer{Name: name, Command: c.Command, Args: c.Args, Env: c.Env, Timeout: c.Timeout}
	}
	return out
}

func loggingEmitter(logger *slog.Logger) core.EventEmitter {
	return core.EventEmitterFunc(func(ctx context.Context, ev core.Event) {
		logger.DebugContext(ctx, "event",
			slog.String("type", string(ev.Type)),
			slog.String("source", ev.Source),
			slog.String("job_id", ev.JobID),
			slog.String("run_id", ev.RunID),
			slog.Any("payload", ev.Payload),
		)
	})
}
