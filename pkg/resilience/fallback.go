// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/errors"
	"github.com/jllopis/steward/pkg/llm"
	"github.com/jllopis/steward/pkg/telemetry"
)

// FallbackProvider is an llm.Provider that walks a prioritized model list.
// Each model gets the full retry policy; provider overload or an exhausted
// retry budget moves on to the next model. Other failures surface at once.
type FallbackProvider struct {
	provider  llm.Provider
	providers map[string]llm.Provider
	models    []string
	retrier   *Retrier
	cooldown  *ModelCooldown
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	events    core.EventEmitter
	tracer    trace.Tracer
}

// FallbackOption configures a FallbackProvider.
type FallbackOption func(*FallbackProvider)

// WithRetrier sets the per-model retrier.
func WithRetrier(r *Retrier) FallbackOption {
	return func(f *FallbackProvider) { f.retrier = r }
}

// WithCooldown shares a cooldown tracker with the provider.
func WithCooldown(c *ModelCooldown) FallbackOption {
	return func(f *FallbackProvider) { f.cooldown = c }
}

// WithModelProvider routes model to a different backend than the default one.
func WithModelProvider(model string, p llm.Provider) FallbackOption {
	return func(f *FallbackProvider) { f.providers[model] = p }
}

// WithFallbackLogger sets the logger.
func WithFallbackLogger(l *slog.Logger) FallbackOption {
	return func(f *FallbackProvider) { f.logger = l }
}

// WithFallbackMetrics sets the metrics sink.
func WithFallbackMetrics(m *telemetry.Metrics) FallbackOption {
	return func(f *FallbackProvider) { f.metrics = m }
}

// WithFallbackEvents emits a model.fallback event each time the provider
// moves to the next model.
func WithFallbackEvents(em core.EventEmitter) FallbackOption {
	return func(f *FallbackProvider) { f.events = em }
}

// NewFallbackProvider builds a provider over primary followed by fallbacks.
func NewFallbackProvider(p llm.Provider, primary string, fallbacks []string, opts ...FallbackOption) *FallbackProvider {
	f := &FallbackProvider{
		provider:  p,
		providers: make(map[string]llm.Provider),
		models:    append([]string{primary}, fallbacks...),
		events:    core.NoopEventEmitter{},
		tracer:    telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.retrier == nil {
		f.retrier = NewRetrier(WithRetryLogger(f.logger), WithRetryMetrics(f.metrics))
	}
	if f.cooldown == nil {
		f.cooldown = NewModelCooldown(0, 0)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Models returns the configured model list, primary first.
func (f *FallbackProvider) Models() []string {
	return append([]string(nil), f.models...)
}

// Chat implements llm.Provider. req.Model is ignored in favour of the list.
func (f *FallbackProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	candidates := f.cooldown.Order(f.models)
	var lastErr error
	for i, model := range candidates {
		if i > 0 {
			f.logger.WarnContext(ctx, "resilience.fallback",
				slog.String("from", candidates[i-1]),
				slog.String("to", model),
				slog.String("error", lastErr.Error()),
			)
			f.metrics.RecordFallback(ctx, candidates[i-1], model)
			f.events.Emit(ctx, core.NewEventContext(ctx, core.EventModelFallback, "resilience", "", map[string]any{
				"from":  candidates[i-1],
				"to":    model,
				"error": lastErr.Error(),
			}))
		}

		resp, err := f.try(ctx, model, req)
		if err == nil {
			f.cooldown.RecordSuccess(model)
			return resp, nil
		}
		lastErr = err
		d := f.cooldown.RecordFailure(model)
		f.logger.WarnContext(ctx, "resilience.model.failed",
			slog.String("model", model),
			slog.Duration("cooldown", d),
			slog.String("error", err.Error()),
		)

		if !llm.IsOverloaded(err) && !stderrors.Is(err, ErrRetriesExhausted) {
			return nil, err
		}
	}
	if lastErr == nil {
		return nil, errors.New(errors.CodeLLMError, "no models configured", nil)
	}
	return nil, lastErr
}

func (f *FallbackProvider) try(ctx context.Context, model string, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p := f.provider
	if alt, ok := f.providers[model]; ok {
		p = alt
	}
	req.Model = model

	ctx, span := f.tracer.Start(ctx, "llm.chat", trace.WithAttributes(
		telemetry.LLMAttributes(model, "", len(req.Messages), 0)...,
	))
	defer span.End()

	attempts := 0
	resp, err := Retry(ctx, f.retrier, func(ctx context.Context) (*llm.ChatResponse, error) {
		attempts++
		return p.Chat(ctx, req)
	})
	span.SetAttributes(attribute.Int(telemetry.AttrRetryAttempt, attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	return resp, nil
}

var _ llm.Provider = (*FallbackProvider)(nil)
