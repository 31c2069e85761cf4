// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp connects steward registries to the Model Context Protocol.
// A Client reaches an external MCP server whose tools become delegated leaf
// operations, and Serve exposes a Registry to MCP hosts over stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/resilience"
)

// DefaultTimeout bounds the handshake and every request when a server sets
// no timeout of its own.
const DefaultTimeout = 30 * time.Second

// StdioServer describes an MCP server started as a subprocess.
type StdioServer struct {
	Name    string
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
}

func (s StdioServer) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client talks to one MCP server. List and call requests are retried on
// network and rate limit errors.
type Client struct {
	server  StdioServer
	conn    client.MCPClient
	retrier *resilience.Retrier
	logger  *slog.Logger
}

// Dial starts the server subprocess and performs the MCP handshake.
func Dial(ctx context.Context, srv StdioServer, opts ...ClientOption) (*Client, error) {
	if srv.Command == "" {
		return nil, fmt.Errorf("mcp server %q: command is required", srv.Name)
	}
	conn, err := client.NewStdioMCPClient(srv.Command, srv.Env, srv.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: start: %w", srv.Name, err)
	}
	// The subprocess lives until Close, not until ctx ends.
	if err := conn.Start(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mcp server %q: start: %w", srv.Name, err)
	}

	hsCtx, cancel := context.WithTimeout(ctx, srv.timeout())
	defer cancel()
	var req mcp.InitializeRequest
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "steward", Version: core.Version}
	if _, err := conn.Initialize(hsCtx, req); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mcp server %q: initialize: %w", srv.Name, err)
	}

	c := &Client{server: srv, conn: conn, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.retrier = resilience.NewRetrier(
		resilience.WithMaxAttempts(3),
		resilience.WithPolicies(
			resilience.BackoffPolicy{Initial: 200 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: 0.1},
			resilience.RateLimitPolicy(),
		),
		resilience.WithRetryLogger(c.logger),
	)
	return c, nil
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.server.Name }

// CallTool runs a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return request(ctx, c, func(ctx context.Context) (*mcp.CallToolResult, error) {
		return c.conn.CallTool(ctx, req)
	})
}

// Operations lists the server's tools as registry operations. Tools that
// cannot be adapted are logged and skipped.
func (c *Client) Operations(ctx context.Context) ([]core.Operation, error) {
	resp, err := request(ctx, c, func(ctx context.Context) (*mcp.ListToolsResult, error) {
		return c.conn.ListTools(ctx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: list tools: %w", c.Name(), err)
	}
	ops := make([]core.Operation, 0, len(resp.Tools))
	for _, tool := range resp.Tools {
		op, err := NewOperationAdapter(tool, c)
		if err != nil {
			c.logger.WarnContext(ctx, "mcp.tool.skipped",
				slog.String("server", c.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		ops = append(ops, op)
	}
	c.logger.DebugContext(ctx, "mcp.tools.discovered",
		slog.String("server", c.Name()),
		slog.Int("count", len(ops)),
	)
	return ops, nil
}

// Close terminates the connection and the server subprocess.
func (c *Client) Close() error {
	return c.conn.Close()
}

// request retries fn with a fresh per-attempt deadline.
func request[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	return resilience.Retry(ctx, c.retrier, func(ctx context.Context) (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.server.timeout())
		defer cancel()
		return fn(attemptCtx)
	})
}
