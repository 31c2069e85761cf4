package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/registry"
)

// Server publishes the operations of a Registry as MCP tools. Calls go
// through Registry.Execute, so the guardrail and hooks still apply.
type Server struct {
	mcpServer *server.MCPServer
	registry  *registry.Registry
	logger    *slog.Logger
}

// NewServer builds a server named name exposing every operation reg offers
// to the model.
func NewServer(name string, reg *registry.Registry, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcpServer: server.NewMCPServer(name, core.Version, server.WithToolCapabilities(false)),
		registry:  reg,
		logger:    logger,
	}
	for _, desc := range reg.Definitions() {
		if err := s.register(desc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) register(desc core.Descriptor) error {
	schema := desc.InputSchema
	if schema == nil {
		schema = core.ObjectSchema(map[string]any{})
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema for %s: %w", desc.Name, err)
	}
	tool := mcp.NewToolWithRawSchema(desc.Name, desc.Description, raw)

	name := desc.Name
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		res := s.registry.Execute(ctx, name, args)
		if res.IsError {
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	})
	return nil
}

// Serve answers MCP requests read from in until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.InfoContext(ctx, "mcp.server.started", slog.Int("operations", s.registry.Len()))
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

// Serve exposes reg over in and out until ctx is done.
func Serve(ctx context.Context, name string, reg *registry.Registry, in io.Reader, out io.Writer, logger *slog.Logger) error {
	s, err := NewServer(name, reg, logger)
	if err != nil {
		return err
	}
	return s.Serve(ctx, in, out)
}
