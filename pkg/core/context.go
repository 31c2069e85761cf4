package core

import (
	"context"

	"github.com/google/uuid"
)

type runIDKey struct{}
type jobIDKey struct{}

// Run ids tie together every span, event and audit record of one top-level
// turn. Job ids mark calls made inside a delegated sub-conversation.

// WithRunID attaches a run id to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run id if present.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok
}

// EnsureRunID ensures a run id exists in the context.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := RunID(ctx); ok {
		return ctx, id
	}
	id := newRunID()
	return WithRunID(ctx, id), id
}

// WithJobID marks the context as running inside a delegation job.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobID returns the delegation job id if present.
func JobID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(jobIDKey{}).(string)
	return id, ok
}

func newRunID() string {
	return "run-" + uuid.NewString()
}
