// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"time"

	"github.com/jllopis/steward/pkg/errors"
)

// WithTimeout runs fn with a deadline of d. See WithTimeoutResult.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	_, err := WithTimeoutResult(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WithTimeoutResult runs fn and returns as soon as it finishes or d
// elapses, whichever comes first. A non-positive d calls fn inline.
//
// When d elapses the error is a recoverable CodeTimeout. When the parent
// context ends first it is CodeContextLost. In both cases fn keeps running
// in the background until it observes its context.
func WithTimeoutResult[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	parent := ctx
	if parent.Err() != nil {
		var zero T
		return zero, cancelled(parent)
	}
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()

	var (
		value T
		err   error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		value, err = fn(ctx)
	}()

	select {
	case <-done:
		return value, err
	case <-ctx.Done():
	}

	var zero T
	if parent.Err() != nil {
		return zero, cancelled(parent)
	}
	return zero, errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
		WithContext("timeout", d.String()).
		WithRecoverable(true)
}

func cancelled(ctx context.Context) error {
	return errors.New(errors.CodeContextLost, "operation cancelled", ctx.Err())
}
