// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/steward/pkg/errors"
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed means the circuit breaker is working normally.
	StateClosed CircuitBreakerState = "closed"

	// StateOpen means the circuit breaker is blocking calls.
	StateOpen CircuitBreakerState = "open"

	// StateHalfOpen means the circuit breaker is testing if service recovered.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// Gauge returns the metric value for the state (0=open, 1=half-open, 2=closed).
func (s CircuitBreakerState) Gauge() int64 {
	switch s {
	case StateOpen:
		return 0
	case StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures before opening the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of successes in half-open before closing.
	SuccessThreshold int

	// Timeout is how long to wait before trying half-open state.
	Timeout time.Duration

	// Name is the circuit breaker identifier for logging/metrics.
	Name string

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// CircuitBreaker stops calling a failing dependency for a while so callers
// degrade instead of waiting on it. While half-open a single probe runs at a
// time; concurrent calls are rejected as if the breaker were open. Errors
// caused by the caller's own context ending are not counted.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitBreakerState
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
}

// NewCircuitBreaker applies defaults for zero fields: five failures to open,
// two successes to close and a thirty second open period.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}
	return &CircuitBreaker{config: config, state: StateClosed, now: time.Now}
}

// Call runs fn when the breaker admits it and records the outcome. A
// rejected call returns a recoverable CodeInternal error without running fn.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.admit() {
		return errors.New(errors.CodeInternal, "circuit breaker open", nil).
			WithContext("breaker", cb.config.Name).
			WithRecoverable(true)
	}
	err := fn(ctx)
	cb.record(ctx, err)
	return err
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) > cb.config.Timeout {
		cb.set(StateHalfOpen)
	}
	ok := cb.state == StateClosed || (cb.state == StateHalfOpen && !cb.probing)
	if ok && cb.state == StateHalfOpen {
		cb.probing = true
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return ok
}

func (cb *CircuitBreaker) record(ctx context.Context, err error) {
	cb.mu.Lock()
	from := cb.state
	halfOpen := cb.state == StateHalfOpen
	cb.probing = false
	switch {
	case err != nil && ctx.Err() != nil:
		// Cancelled by the caller; says nothing about the dependency.
	case err != nil:
		cb.failures++
		if halfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.set(StateOpen)
			cb.openedAt = cb.now()
		}
	case halfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.set(StateClosed)
		}
	default:
		cb.failures = 0
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// set changes state and clears the counters. Callers hold mu.
func (cb *CircuitBreaker) set(s CircuitBreakerState) {
	cb.state = s
	cb.failures = 0
	cb.successes = 0
}

func (cb *CircuitBreaker) notify(from, to CircuitBreakerState) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// State returns the current state. An open breaker whose period elapsed
// still reports open until the next call.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.set(StateClosed)
	cb.probing = false
}
