package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/governance"
	"github.com/jllopis/steward/pkg/registry"
)

type stubCaller struct {
	lastName string
	lastArgs map[string]any
	result   *mcpgo.CallToolResult
	err      error
}

func (s *stubCaller) CallTool(_ context.Context, name string, args map[string]any) (*mcpgo.CallToolResult, error) {
	s.lastName = name
	s.lastArgs = args
	return s.result, s.err
}

func textResult(text string) *mcpgo.CallToolResult {
	return &mcpgo.CallToolResult{Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: text}}}
}

func TestOperationAdapterExecute(t *testing.T) {
	tool := mcpgo.Tool{
		Name:        "web_fetch",
		Description: "Fetch a URL",
		InputSchema: mcpgo.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"url": map[string]any{"type": "string"}},
			Required:   []string{"url"},
		},
	}

	tests := []struct {
		name    string
		args    core.Args
		caller  *stubCaller
		want    core.Result
		invoked bool
	}{
		{
			name:    "text content",
			args:    core.Args{"url": "https://go.dev"},
			caller:  &stubCaller{result: textResult("<html>")},
			want:    core.Success("<html>"),
			invoked: true,
		},
		{
			name:   "missing required",
			args:   core.Args{},
			caller: &stubCaller{result: textResult("unused")},
			want:   core.Failure("Missing required parameter: url"),
		},
		{
			name:    "tool error",
			args:    core.Args{"url": "x"},
			caller:  &stubCaller{result: &mcpgo.CallToolResult{IsError: true, Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "404"}}}},
			want:    core.Failure("404"),
			invoked: true,
		},
		{
			name:    "transport error",
			args:    core.Args{"url": "x"},
			caller:  &stubCaller{err: errors.New("broken pipe")},
			want:    core.Failure("MCP tool web_fetch failed: broken pipe"),
			invoked: true,
		},
		{
			name:    "structured content",
			args:    core.Args{"url": "x"},
			caller:  &stubCaller{result: &mcpgo.CallToolResult{StructuredContent: map[string]any{"ok": true}}},
			want:    core.Success(`{"ok":true}`),
			invoked: true,
		},
		{
			name:    "nil result",
			args:    core.Args{"url": "x"},
			caller:  &stubCaller{},
			want:    core.Failure("MCP tool returned no result"),
			invoked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := NewOperationAdapter(tool, tt.caller)
			if err != nil {
				t.Fatalf("NewOperationAdapter: %v", err)
			}
			got := op.Execute(context.Background(), tt.args)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
			if invoked := tt.caller.lastName == "web_fetch"; invoked != tt.invoked {
				t.Errorf("expected invoked=%v", tt.invoked)
			}
		})
	}
}

func TestOperationAdapterDescriptor(t *testing.T) {
	raw := json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`)
	op, err := NewOperationAdapter(mcpgo.Tool{Name: "search", Description: "Search", RawInputSchema: raw}, &stubCaller{})
	if err != nil {
		t.Fatalf("NewOperationAdapter: %v", err)
	}
	want := core.Descriptor{
		Name:        "search",
		Description: "Search",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
			"required":   []any{"q"},
		},
	}
	if diff := cmp.Diff(want, op.Descriptor()); diff != "" {
		t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
	}

	if _, err := NewOperationAdapter(mcpgo.Tool{}, &stubCaller{}); err == nil {
		t.Errorf("expected error for unnamed tool")
	}
	if _, err := NewOperationAdapter(mcpgo.Tool{Name: "x"}, nil); err == nil {
		t.Errorf("expected error for nil caller")
	}
	if _, err := NewOperationAdapter(mcpgo.Tool{Name: "x", RawInputSchema: json.RawMessage(`[`)}, &stubCaller{}); err == nil {
		t.Errorf("expected error for invalid raw schema")
	}
}

func TestPoolConnectFailure(t *testing.T) {
	p := NewPool(nil)
	p.dial = func(context.Context, StdioServer) (*Client, error) {
		return nil, errors.New("no such command")
	}
	err := p.Connect(context.Background(), []StdioServer{{Name: "a", Command: "a"}, {Name: "b", Command: "b"}})
	if err == nil || !strings.Contains(err.Error(), "no such command") {
		t.Fatalf("expected dial error, got %v", err)
	}
	if p.Len() != 0 {
		t.Errorf("expected no clients after failure, got %d", p.Len())
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := p.Close(); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed on second close, got %v", err)
	}
	if _, err := p.Operations(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}

func TestDialRequiresCommand(t *testing.T) {
	if _, err := Dial(context.Background(), StdioServer{Name: "empty"}); err == nil {
		t.Fatalf("expected error for missing command")
	}
}

const serveHelperEnv = "STEWARD_MCP_SERVE_HELPER"

func helperRegistry() *registry.Registry {
	echo := core.NewOperation(core.Descriptor{
		Name:        "echo",
		Description: "Echo the input",
		InputSchema: core.ObjectSchema(map[string]any{"text": map[string]any{"type": "string"}}, "text"),
	}, func(_ context.Context, args core.Args) core.Result {
		text, _ := core.StringArg(args, "text")
		return core.Success("echo: " + text)
	})
	fail := core.NewOperation(core.Descriptor{Name: "fail", Description: "Always fails"},
		func(context.Context, core.Args) core.Result { return core.Failure("it broke") })
	search := core.NewOperation(core.Descriptor{Name: "web_search", Description: "Search"},
		func(context.Context, core.Args) core.Result { return core.Success("results") })

	return registry.New(registry.RoleTopLevel,
		registry.WithGuardrail(governance.NewGuardrail(governance.WithDeny("web_search"))),
		registry.WithOperations(echo, fail, search),
	)
}

// TestHelperMCPServe runs as the MCP server subprocess of TestServeOverStdio.
func TestHelperMCPServe(t *testing.T) {
	if os.Getenv(serveHelperEnv) != "1" {
		return
	}
	if err := Serve(context.Background(), "steward-test", helperRegistry(), os.Stdin, os.Stdout, nil); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestServeOverStdio(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	ctx := context.Background()
	client, err := Dial(ctx, StdioServer{
		Name:    "self",
		Command: exe,
		Args:    []string{"-test.run=^TestHelperMCPServe$"},
		Env:     append(os.Environ(), serveHelperEnv+"=1"),
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	pool := NewPool(nil)
	if err := pool.Add(client); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer pool.Close()

	ops, err := pool.Operations(ctx)
	if err != nil {
		t.Fatalf("Operations: %v", err)
	}
	byName := make(map[string]core.Operation)
	var names []string
	for _, op := range ops {
		byName[op.Descriptor().Name] = op
		names = append(names, op.Descriptor().Name)
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"echo", "fail"}, names); diff != "" {
		t.Fatalf("served tools mismatch (-want +got):\n%s", diff)
	}

	res := byName["echo"].Execute(ctx, core.Args{"text": "hi"})
	if res.IsError || res.Content != "echo: hi" {
		t.Errorf("unexpected echo result: %+v", res)
	}
	res = byName["fail"].Execute(ctx, core.Args{})
	if !res.IsError || res.Content != "it broke" {
		t.Errorf("unexpected fail result: %+v", res)
	}

	delegated := registry.New(registry.RoleDelegated, registry.WithOperations(ops...))
	res = delegated.Execute(ctx, "echo", core.Args{"text": "via registry"})
	if res.Content != "echo: via registry" {
		t.Errorf("unexpected registry result: %+v", res)
	}
}

func TestPoolPolicyHidesDeniedTools(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	ctx := context.Background()
	pool := NewPool(nil)
	pool.dial = func(ctx context.Context, srv StdioServer) (*Client, error) {
		srv.Command = exe
		srv.Args = []string{"-test.run=^TestHelperMCPServe$"}
		srv.Env = append(os.Environ(), serveHelperEnv+"=1")
		return Dial(ctx, srv)
	}
	pool.UsePolicy(governance.NewRuleSet([]governance.Rule{
		{ID: "no-fail", Effect: "deny", Type: governance.ActionMCP, Name: "fa*"},
	}))
	defer pool.Close()

	if err := pool.Connect(ctx, []StdioServer{{Name: "self"}}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ops, err := pool.Operations(ctx)
	if err != nil {
		t.Fatalf("Operations: %v", err)
	}
	var names []string
	for _, op := range ops {
		names = append(names, op.Descriptor().Name)
	}
	if diff := cmp.Diff([]string{"echo"}, names); diff != "" {
		t.Fatalf("tools mismatch (-want +got):\n%s", diff)
	}
}
