// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/steward/pkg/errors"
	"github.com/jllopis/steward/pkg/llm"
	"github.com/jllopis/steward/pkg/telemetry"
)

// ErrRetriesExhausted wraps the last error once a Retrier runs out of attempts.
var ErrRetriesExhausted = stderrors.New("retry budget exhausted")

// DefaultMaxAttempts is the attempt cap used when none is configured.
const DefaultMaxAttempts = 5

// BackoffPolicy computes exponential delays with positive jitter.
type BackoffPolicy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the computed delay, jitter included.
	Max time.Duration
	// Factor multiplies the delay on each attempt. Zero means 2.
	Factor float64
	// Jitter adds up to Jitter*delay on top of the computed delay.
	Jitter float64
}

// NetworkPolicy is used for recoverable failures.
func NetworkPolicy() BackoffPolicy {
	return BackoffPolicy{Initial: time.Second, Max: 60 * time.Second, Factor: 2, Jitter: 0.1}
}

// RateLimitPolicy is used for 429 answers.
func RateLimitPolicy() BackoffPolicy {
	return BackoffPolicy{Initial: 5 * time.Second, Max: 300 * time.Second, Factor: 2, Jitter: 0.2}
}

// Compute returns the delay before retry number attempt (1-based).
func (p BackoffPolicy) Compute(attempt int) time.Duration {
	return p.compute(attempt, rand.Float64())
}

func (p BackoffPolicy) compute(attempt int, r float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.Factor
	if factor == 0 {
		factor = 2
	}
	base := float64(p.Initial) * math.Pow(factor, float64(attempt-1))
	delay := base + base*p.Jitter*r
	if p.Max > 0 && delay > float64(p.Max) {
		return p.Max
	}
	return time.Duration(delay)
}

// Retrier retries an action according to the class of each failure.
// Auth and permanent failures, and provider overload, return at once.
type Retrier struct {
	MaxAttempts int
	Network     BackoffPolicy
	RateLimit   BackoffPolicy

	logger  *slog.Logger
	metrics *telemetry.Metrics
	wait    func(ctx context.Context, d time.Duration) error
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithMaxAttempts sets the attempt cap.
func WithMaxAttempts(n int) RetrierOption {
	return func(r *Retrier) { r.MaxAttempts = n }
}

// WithPolicies sets the network and rate-limit policies.
func WithPolicies(network, rateLimit BackoffPolicy) RetrierOption {
	return func(r *Retrier) {
		r.Network = network
		r.RateLimit = rateLimit
	}
}

// WithRetryLogger sets the logger.
func WithRetryLogger(l *slog.Logger) RetrierOption {
	return func(r *Retrier) { r.logger = l }
}

// WithRetryMetrics sets the metrics sink.
func WithRetryMetrics(m *telemetry.Metrics) RetrierOption {
	return func(r *Retrier) { r.metrics = m }
}

// NewRetrier returns a Retrier with the default policies.
func NewRetrier(opts ...RetrierOption) *Retrier {
	r := &Retrier{
		MaxAttempts: DefaultMaxAttempts,
		Network:     NetworkPolicy(),
		RateLimit:   RateLimitPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempt cap is reached. Exhaustion wraps the last error with
// ErrRetriesExhausted. Cancellation during backoff returns CodeContextLost.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}
	wait := r.wait
	if wait == nil {
		wait = sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if llm.IsOverloaded(err) {
			return err
		}
		class := Classify(err)
		if !class.Retryable() {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		policy := r.Network
		if class == ClassRateLimited {
			policy = r.RateLimit
		}
		delay := policy.Compute(attempt)
		logger.WarnContext(ctx, "resilience.retry",
			slog.String("class", class.String()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		r.metrics.RecordRetry(ctx, class.String())
		trace.SpanFromContext(ctx).AddEvent("retry",
			trace.WithAttributes(telemetry.RetryAttributes("", class.String(), attempt)...))

		if err := wait(ctx, delay); err != nil {
			return errors.New(errors.CodeContextLost, "context canceled during retry", err).
				WithContext("attempt", attempt).
				WithContext("max_attempts", maxAttempts)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

// Retry is Do for functions that return a value.
func Retry[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
