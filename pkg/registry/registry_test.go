// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/governance"
	"github.com/jllopis/steward/pkg/hooks"
)

func echoOp(name string) *core.OperationFunc {
	return core.NewOperation(core.Descriptor{Name: name, Description: "echo " + name}, func(_ context.Context, args core.Args) core.Result {
		return core.Success(name + " ok")
	})
}

type recorder struct {
	mu    sync.Mutex
	pre   []string
	post  []string
	posts []core.Result
}

func (r *recorder) pipeline() *hooks.Pipeline {
	return hooks.NewPipeline().
		AddPre(hooks.PreHookFunc(func(_ context.Context, name string, _ core.Args) (core.Args, *core.Result) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.pre = append(r.pre, name)
			return nil, nil
		})).
		AddPost(hooks.PostHookFunc(func(_ context.Context, name string, _ core.Args, res core.Result, _ time.Duration) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.post = append(r.post, name)
			r.posts = append(r.posts, res)
		}))
}

func TestGuardrailBlocksBeforeHooks(t *testing.T) {
	rec := &recorder{}
	r := New(RoleTopLevel,
		WithGuardrail(governance.NewGuardrail(governance.WithDeny("X"))),
		WithHooks(rec.pipeline()),
		WithOperations(echoOp("X"), echoOp("Y")),
	)
	ctx := context.Background()

	res := r.Execute(ctx, "X", core.Args{})
	if !res.IsError || !strings.Contains(res.Content, "'X'") {
		t.Fatalf("expected guardrail error naming X, got %+v", res)
	}
	if !strings.Contains(res.Content, "Suggestion:") {
		t.Errorf("expected remediation text: %q", res.Content)
	}
	if len(rec.pre) != 0 || len(rec.post) != 0 {
		t.Fatalf("no hook may run for a denied call, pre=%v post=%v", rec.pre, rec.post)
	}

	res = r.Execute(ctx, "Y", core.Args{})
	if res.IsError || res.Content != "Y ok" {
		t.Fatalf("expected Y to succeed, got %+v", res)
	}
	if diff := cmp.Diff([]string{"Y"}, rec.pre); diff != "" {
		t.Errorf("pre-hooks mismatch (-want +got):\n%s", diff)
	}
}

func TestDelegatedIgnoresGuardrail(t *testing.T) {
	rec := &recorder{}
	r := New(RoleDelegated,
		WithGuardrail(governance.DefaultGuardrail()),
		WithHooks(rec.pipeline()),
		WithOperations(echoOp("web_search")),
	)
	if res := r.Execute(context.Background(), "web_search", nil); res.IsError {
		t.Fatalf("delegated registry must not apply the guardrail: %+v", res)
	}
	if len(rec.pre) != 1 {
		t.Fatalf("hooks should run on delegated calls")
	}
	if len(r.Definitions()) != 1 {
		t.Fatalf("delegated definitions should include every operation")
	}
}

func TestDefinitionsOmitDenied(t *testing.T) {
	r := New(RoleTopLevel,
		WithGuardrail(governance.DefaultGuardrail()),
		WithOperations(echoOp("read_file"), echoOp("web_search"), echoOp("spawn_agent"), echoOp("web_fetch")),
	)
	var names []string
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"read_file", "spawn_agent"}, names); diff != "" {
		t.Errorf("definitions mismatch (-want +got):\n%s", diff)
	}

	tools := r.ToolDefinitions()
	if len(tools) != 2 || tools[0].Function.Name != "read_file" || tools[0].Function.Parameters == nil {
		t.Errorf("unexpected tool definitions %+v", tools)
	}
	if !r.Has("web_search") {
		t.Errorf("denied operations stay registered")
	}
}

func TestUnknownOperationRunsPostHooks(t *testing.T) {
	rec := &recorder{}
	r := New(RoleTopLevel, WithHooks(rec.pipeline()))

	res := r.Execute(context.Background(), "nope", nil)
	if !res.IsError || res.Content != "Unknown operation: nope" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(rec.post) != 1 || !rec.posts[0].IsError {
		t.Fatalf("post-hooks should observe the unknown call, got %v", rec.post)
	}
}

func TestHookAbortSkipsOperation(t *testing.T) {
	called := false
	op := core.NewOperation(core.Descriptor{Name: "op"}, func(context.Context, core.Args) core.Result {
		called = true
		return core.Success("")
	})
	var posts int
	pipe := hooks.NewPipeline().
		AddPre(hooks.PreHookFunc(func(context.Context, string, core.Args) (core.Args, *core.Result) {
			res := core.Failure("blocked by hook")
			return nil, &res
		})).
		AddPost(hooks.PostHookFunc(func(context.Context, string, core.Args, core.Result, time.Duration) { posts++ }))

	var events []core.Event
	r := New(RoleDelegated, WithHooks(pipe), WithOperations(op), WithEvents(core.EventEmitterFunc(func(_ context.Context, e core.Event) {
		events = append(events, e)
	})))

	res := r.Execute(context.Background(), "op", nil)
	if res.Content != "blocked by hook" || called || posts != 0 {
		t.Fatalf("abort should short-circuit: res=%+v called=%v posts=%d", res, called, posts)
	}
	if len(events) != 1 || events[0].Type != core.EventOperationBlocked || events[0].Payload["reason"] != "hook" {
		t.Fatalf("expected a blocked event, got %+v", events)
	}
}

func TestHookRewritesArgs(t *testing.T) {
	var seen core.Args
	op := core.NewOperation(core.Descriptor{Name: "op"}, func(_ context.Context, args core.Args) core.Result {
		seen = args
		return core.Success("")
	})
	pipe := hooks.NewPipeline().AddPre(hooks.PreHookFunc(func(_ context.Context, _ string, args core.Args) (core.Args, *core.Result) {
		return core.Args{"task": args["task"].(string) + "!"}, nil
	}))
	r := New(RoleDelegated, WithHooks(pipe), WithOperations(op))
	r.Execute(context.Background(), "op", core.Args{"task": "go"})
	if seen["task"] != "go!" {
		t.Fatalf("operation should get rewritten args, got %v", seen)
	}
}

func TestRestrict(t *testing.T) {
	read := echoOp("read_file")
	parent := New(RoleTopLevel,
		WithGuardrail(governance.DefaultGuardrail()),
		WithOperations(read, echoOp("write_file"), echoOp("web_search"), echoOp("bash")),
	)

	child := parent.Restrict([]string{"web_search", "read_file", "teleport", "bash*"})
	if child.Role() != RoleDelegated {
		t.Fatalf("restricted registry must be delegated")
	}
	if diff := cmp.Diff([]string{"read_file", "web_search"}, child.Names()); diff != "" {
		t.Errorf("restricted names mismatch (-want +got):\n%s", diff)
	}
	if got, _ := child.Get("read_file"); got != core.Operation(read) {
		t.Errorf("restricted registry should share operation instances")
	}
	if res := child.Execute(context.Background(), "web_search", nil); res.IsError {
		t.Errorf("delegated web_search should run: %+v", res)
	}
	if res := child.Execute(context.Background(), "write_file", nil); !res.IsError {
		t.Errorf("operations outside the whitelist must be unknown")
	}
	if parent.Restrict(nil).Len() != 0 {
		t.Errorf("empty whitelist grants nothing")
	}
}

func TestVerificationReminder(t *testing.T) {
	r := New(RoleTopLevel,
		WithGuardrail(governance.DefaultGuardrail()),
		WithOperations(echoOp("write_file"), echoOp("read_file")),
	)
	if res := r.Execute(context.Background(), "write_file", nil); !strings.Contains(res.Content, "[Verification required]") {
		t.Errorf("expected reminder, got %q", res.Content)
	}
	if res := r.Execute(context.Background(), "read_file", nil); res.Content != "read_file ok" {
		t.Errorf("unexpected reminder on read_file: %q", res.Content)
	}
	if res := r.Restrict([]string{"write_file"}).Execute(context.Background(), "write_file", nil); res.Content != "write_file ok" {
		t.Errorf("delegated registries add no reminder: %q", res.Content)
	}
}

func TestTimeoutAndPanic(t *testing.T) {
	slow := core.NewOperation(core.Descriptor{Name: "slow"}, func(ctx context.Context, _ core.Args) core.Result {
		<-ctx.Done()
		return core.Success("late")
	})
	boom := core.NewOperation(core.Descriptor{Name: "boom"}, func(context.Context, core.Args) core.Result {
		panic("kaboom")
	})
	r := New(RoleDelegated, WithTimeout(20*time.Millisecond), WithOperations(slow, boom))

	res := r.Execute(context.Background(), "slow", nil)
	if !res.IsError || !strings.Contains(strings.ToLower(res.Content), "timeout") {
		t.Fatalf("expected timeout result, got %+v", res)
	}
	res = r.Execute(context.Background(), "boom", nil)
	if !res.IsError || !strings.Contains(res.Content, "kaboom") {
		t.Fatalf("expected panic result, got %+v", res)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New(RoleDelegated)
	if err := r.Register(echoOp("a")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(echoOp("a")); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := r.Register(echoOp("")); err == nil {
		t.Fatal("expected empty name error")
	}
}

func TestRestrictedRegistriesKeepSeparateLoopWindows(t *testing.T) {
	var logged int
	var mu sync.Mutex
	pipeline := hooks.NewPipeline().
		AddPre(hooks.NewLoopDetector()).
		AddPost(hooks.PostHookFunc(func(context.Context, string, core.Args, core.Result, time.Duration) {
			mu.Lock()
			logged++
			mu.Unlock()
		}))
	base := New(RoleDelegated, WithHooks(pipeline), WithOperations(echoOp("read_file")))

	ctx := context.Background()
	args := core.Args{"path": "tasks/step1.json"}
	for i := range 3 {
		child := base.Restrict([]string{"read_file"})
		if res := child.Execute(ctx, "read_file", args); res.IsError {
			t.Fatalf("job %d blocked by calls from other jobs: %s", i+1, res.Content)
		}
	}
	if logged != 3 {
		t.Errorf("post-hooks should stay shared, got %d calls", logged)
	}

	child := base.Restrict([]string{"read_file"})
	for range 2 {
		child.Execute(ctx, "read_file", args)
	}
	if res := child.Execute(ctx, "read_file", args); !res.IsError || !strings.Contains(res.Content, "Loop detected") {
		t.Errorf("repeats inside one job must still be blocked, got %+v", res)
	}
}

func TestWithoutTimeoutExemptsNamedOperations(t *testing.T) {
	wait := func(name string) *core.OperationFunc {
		return core.NewOperation(core.Descriptor{Name: name}, func(ctx context.Context, _ core.Args) core.Result {
			select {
			case <-time.After(60 * time.Millisecond):
				return core.Success(name + " done")
			case <-ctx.Done():
				return core.Failure("cancelled")
			}
		})
	}
	r := New(RoleTopLevel,
		WithTimeout(20*time.Millisecond),
		WithoutTimeout("spawn_agent"),
		WithOperations(wait("spawn_agent"), wait("read_file")),
	)

	if res := r.Execute(context.Background(), "spawn_agent", nil); res.IsError {
		t.Errorf("exempt operation should outlive the timeout: %+v", res)
	}
	if res := r.Execute(context.Background(), "read_file", nil); !res.IsError {
		t.Errorf("bounded operation should time out: %+v", res)
	}
	if res := r.Restrict([]string{"spawn_agent"}).Execute(context.Background(), "spawn_agent", nil); !res.IsError {
		t.Errorf("exemptions are not inherited by restricted registries: %+v", res)
	}
}
