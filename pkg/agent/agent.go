// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the bounded tool-calling conversation loop used
// for the top-level chat and for every delegated sub-conversation.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/errors"
	"github.com/jllopis/steward/pkg/llm"
	"github.com/jllopis/steward/pkg/resilience"
	"github.com/jllopis/steward/pkg/telemetry"
)

const (
	DefaultMaxIterations = 10

	// MaxIterationsText is the final text of a loop that ran out of turns.
	MaxIterationsText = "max iterations reached"
)

// Executor runs operations for the loop. *registry.Registry implements it.
type Executor interface {
	ToolDefinitions() []llm.Tool
	Execute(ctx context.Context, name string, args core.Args) core.Result
}

// Outcome is the result of one Run.
type Outcome struct {
	Text       string
	Iterations int
	ToolCalls  int
	Exhausted  bool
	Usage      llm.Usage
	// Messages is the full conversation, including the new turns.
	Messages []llm.Message
}

// Loop alternates model turns and operation calls until the model answers
// without asking for operations or the iteration bound is hit.
type Loop struct {
	provider      llm.Provider
	exec          Executor
	model         string
	maxIterations int
	systemPrompt  string
	temperature   float64
	logger        *slog.Logger
	tracer        trace.Tracer
}

// Option configures a Loop.
type Option func(*Loop)

// WithModel sets the model requested from the provider.
func WithModel(model string) Option {
	return func(l *Loop) { l.model = model }
}

// WithMaxIterations bounds the number of model turns.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithSystemPrompt sets the system message added by Run.
func WithSystemPrompt(prompt string) Option {
	return func(l *Loop) { l.systemPrompt = prompt }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(l *Loop) { l.temperature = t }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Loop) { l.logger = lg }
}

// NewLoop creates a loop over provider and exec.
func NewLoop(provider llm.Provider, exec Executor, opts ...Option) *Loop {
	l := &Loop{
		provider:      provider,
		exec:          exec,
		maxIterations: DefaultMaxIterations,
		logger:        slog.Default(),
		tracer:        telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxIterations returns the iteration bound.
func (l *Loop) MaxIterations() int { return l.maxIterations }

// Run starts a new conversation with input as the user turn.
func (l *Loop) Run(ctx context.Context, input string) (*Outcome, error) {
	if strings.TrimSpace(input) == "" {
		return nil, errors.New(errors.CodeInvalidInput, "input is empty", nil)
	}
	var msgs []llm.Message
	if l.systemPrompt != "" {
		msgs = append(msgs, llm.SystemMessage(l.systemPrompt))
	}
	msgs = append(msgs, llm.UserMessage(input))
	return l.Continue(ctx, msgs)
}

// Continue runs the loop over an existing conversation whose last message
// is usually a user turn. The given slice is not modified.
func (l *Loop) Continue(ctx context.Context, history []llm.Message) (*Outcome, error) {
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := l.tracer.Start(ctx, "agent.loop", trace.WithAttributes(
		attribute.String(telemetry.AttrRunID, runID),
		attribute.String(telemetry.AttrLLMModel, l.model),
	))
	defer span.End()

	out := &Outcome{Messages: append([]llm.Message(nil), history...)}
	tools := l.exec.ToolDefinitions()

	for out.Iterations < l.maxIterations {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return out, err
		}
		out.Iterations++

		resp, err := l.provider.Chat(ctx, llm.ChatRequest{
			Model:       l.model,
			Messages:    out.Messages,
			Tools:       tools,
			Temperature: l.temperature,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "llm call failed")
			l.logger.ErrorContext(ctx, "agent.llm.error",
				slog.String("run_id", runID),
				slog.Int("iteration", out.Iterations),
				slog.String("error", err.Error()),
			)
			lerr := llmError(err, l.model)
			span.SetAttributes(telemetry.ErrorAttributes(lerr)...)
			return out, lerr
		}
		out.Usage.Add(resp.Usage)

		if !resp.HasToolCalls() {
			out.Text = resp.Content
			out.Messages = append(out.Messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			span.SetAttributes(telemetry.LLMUsageAttributes(out.Usage.PromptTokens, out.Usage.CompletionTokens)...)
			l.logger.DebugContext(ctx, "agent.loop.done",
				slog.String("run_id", runID),
				slog.Int("iterations", out.Iterations),
				slog.Int("tool_calls", out.ToolCalls),
			)
			return out, nil
		}

		out.Messages = append(out.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			out.ToolCalls++
			result := l.call(ctx, call)
			out.Messages = append(out.Messages, llm.ToolResultMessage(call.ID, result.Content))
		}
	}

	out.Exhausted = true
	out.Text = MaxIterationsText
	span.SetAttributes(attribute.Bool("steward.loop.exhausted", true))
	l.logger.WarnContext(ctx, "agent.loop.max_iterations",
		slog.String("run_id", runID),
		slog.Int("max_iterations", l.maxIterations),
	)
	return out, nil
}

func (l *Loop) call(ctx context.Context, call llm.ToolCall) core.Result {
	args := core.Args{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			l.logger.WarnContext(ctx, "agent.tool.bad_arguments",
				slog.String("operation", call.Function.Name),
				slog.String("tool_call_id", call.ID),
				slog.String("error", err.Error()),
			)
			return core.Failuref("Invalid arguments for %s: %v", call.Function.Name, err)
		}
	}
	return l.exec.Execute(ctx, call.Function.Name, args)
}

// llmError wraps a backend failure. It is recoverable when its resilience
// class is retryable.
func llmError(err error, model string) *errors.StewardError {
	return errors.New(errors.CodeLLMError, "LLM call failed", err).
		WithContext("model", model).
		WithAttribute("llm.model", model).
		WithRecoverable(resilience.Classify(err).Retryable())
}
