// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package hooks implements the ordered pre/post middleware that runs around
// every registry call: loop detection, memory injection and execution logging.
package hooks

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jllopis/steward/pkg/core"
)

// PreHook runs before an operation. It returns nil, nil to pass the call
// through, rewritten args to replace them for the rest of the chain, or a
// result to abort the call with. Hooks must not mutate the args they get.
type PreHook interface {
	Before(ctx context.Context, name string, args core.Args) (core.Args, *core.Result)
}

// PostHook observes a finished call. It cannot change the result.
type PostHook interface {
	After(ctx context.Context, name string, args core.Args, result core.Result, d time.Duration)
}

// PreHookFunc adapts a function to PreHook.
type PreHookFunc func(ctx context.Context, name string, args core.Args) (core.Args, *core.Result)

// Before implements PreHook.
func (f PreHookFunc) Before(ctx context.Context, name string, args core.Args) (core.Args, *core.Result) {
	return f(ctx, name, args)
}

// PostHookFunc adapts a function to PostHook.
type PostHookFunc func(ctx context.Context, name string, args core.Args, result core.Result, d time.Duration)

// After implements PostHook.
func (f PostHookFunc) After(ctx context.Context, name string, args core.Args, result core.Result, d time.Duration) {
	f(ctx, name, args, result, d)
}

// Forker is a PreHook whose state belongs to one conversation. Fork returns
// a fresh instance with the same settings.
type Forker interface {
	PreHook
	Fork() PreHook
}

// Pipeline holds pre and post hooks in registration order.
type Pipeline struct {
	mu   sync.RWMutex
	pre  []PreHook
	post []PostHook
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// AddPre appends pre-hooks.
func (p *Pipeline) AddPre(hooks ...PreHook) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pre = append(p.pre, hooks...)
	return p
}

// AddPost appends post-hooks.
func (p *Pipeline) AddPost(hooks ...PostHook) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.post = append(p.post, hooks...)
	return p
}

// Fork returns a pipeline with the same hooks in the same order, where every
// Forker is replaced by its fork. Other hooks are shared.
func (p *Pipeline) Fork() *Pipeline {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	fork := &Pipeline{
		pre:  make([]PreHook, len(p.pre)),
		post: slices.Clone(p.post),
	}
	for i, h := range p.pre {
		if f, ok := h.(Forker); ok {
			h = f.Fork()
		}
		fork.pre[i] = h
	}
	return fork
}

// Len returns the number of pre and post hooks.
func (p *Pipeline) Len() (pre, post int) {
	if p == nil {
		return 0, 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pre), len(p.post)
}

// Before runs the pre-hooks in order. It returns the args to call the
// operation with, or a non-nil result when a hook aborted the call.
func (p *Pipeline) Before(ctx context.Context, name string, args core.Args) (core.Args, *core.Result) {
	if p == nil {
		return args, nil
	}
	p.mu.RLock()
	hooks := slices.Clone(p.pre)
	p.mu.RUnlock()

	current := args
	for _, h := range hooks {
		next, abort := h.Before(ctx, name, current)
		if abort != nil {
			return current, abort
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

// After runs every post-hook in order.
func (p *Pipeline) After(ctx context.Context, name string, args core.Args, result core.Result, d time.Duration) {
	if p == nil {
		return
	}
	p.mu.RLock()
	hooks := slices.Clone(p.post)
	p.mu.RUnlock()

	for _, h := range hooks {
		h.After(ctx, name, args, result, d)
	}
}
