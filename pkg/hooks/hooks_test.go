// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/steward/pkg/core"
)

func TestPipelineOrderAndRewrite(t *testing.T) {
	var order []string
	p := NewPipeline().
		AddPre(
			PreHookFunc(func(_ context.Context, _ string, args core.Args) (core.Args, *core.Result) {
				order = append(order, "pre1")
				return core.Args{"step": args["step"].(int) + 1}, nil
			}),
			PreHookFunc(func(_ context.Context, _ string, args core.Args) (core.Args, *core.Result) {
				order = append(order, "pre2")
				if args["step"] != 2 {
					t.Errorf("second hook should see rewritten args, got %v", args)
				}
				return nil, nil
			}),
		).
		AddPost(
			PostHookFunc(func(context.Context, string, core.Args, core.Result, time.Duration) { order = append(order, "post1") }),
			PostHookFunc(func(context.Context, string, core.Args, core.Result, time.Duration) { order = append(order, "post2") }),
		)

	args, abort := p.Before(context.Background(), "op", core.Args{"step": 1})
	if abort != nil {
		t.Fatalf("unexpected abort: %+v", abort)
	}
	if args["step"] != 2 {
		t.Fatalf("expected rewritten args, got %v", args)
	}
	p.After(context.Background(), "op", args, core.Success("ok"), time.Millisecond)

	if diff := cmp.Diff([]string{"pre1", "pre2", "post1", "post2"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if pre, post := p.Len(); pre != 2 || post != 2 {
		t.Errorf("unexpected hook counts %d/%d", pre, post)
	}
}

func TestPipelineAbortShortCircuits(t *testing.T) {
	called := false
	p := NewPipeline().AddPre(
		PreHookFunc(func(context.Context, string, core.Args) (core.Args, *core.Result) {
			res := core.Failure("stop")
			return nil, &res
		}),
		PreHookFunc(func(context.Context, string, core.Args) (core.Args, *core.Result) {
			called = true
			return nil, nil
		}),
	)

	_, abort := p.Before(context.Background(), "op", core.Args{})
	if abort == nil || !abort.IsError || abort.Content != "stop" {
		t.Fatalf("expected abort result, got %+v", abort)
	}
	if called {
		t.Errorf("hooks after an abort must not run")
	}
}

func TestNilPipeline(t *testing.T) {
	var p *Pipeline
	args, abort := p.Before(context.Background(), "op", core.Args{"a": 1})
	if abort != nil || args["a"] != 1 {
		t.Fatalf("nil pipeline should pass through")
	}
	p.After(context.Background(), "op", args, core.Success(""), 0)
}
