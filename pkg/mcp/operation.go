package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/steward/pkg/core"
)

// ToolCaller runs an MCP tool by name.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// OperationAdapter exposes an MCP tool as a registry operation.
type OperationAdapter struct {
	tool   mcp.Tool
	desc   core.Descriptor
	caller ToolCaller
}

// NewOperationAdapter builds an operation backed by tool and caller.
func NewOperationAdapter(tool mcp.Tool, caller ToolCaller) (*OperationAdapter, error) {
	if tool.Name == "" {
		return nil, errors.New("mcp tool name is required")
	}
	if caller == nil {
		return nil, errors.New("tool caller is required")
	}
	schema, err := inputSchema(tool)
	if err != nil {
		return nil, fmt.Errorf("mcp tool %q: %w", tool.Name, err)
	}
	return &OperationAdapter{
		tool: tool,
		desc: core.Descriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		},
		caller: caller,
	}, nil
}

// Descriptor implements core.Operation.
func (a *OperationAdapter) Descriptor() core.Descriptor { return a.desc }

// Execute implements core.Operation. Transport failures and tool errors
// both come back as error-flagged results.
func (a *OperationAdapter) Execute(ctx context.Context, args core.Args) core.Result {
	if args == nil {
		args = core.Args{}
	}
	if missing := missingRequired(a.tool, args); missing != "" {
		return core.Failuref("Missing required parameter: %s", missing)
	}

	result, err := a.caller.CallTool(ctx, a.tool.Name, args)
	if err != nil {
		return core.Failuref("MCP tool %s failed: %v", a.tool.Name, err)
	}
	return toResult(result)
}

func inputSchema(tool mcp.Tool) (map[string]any, error) {
	if len(tool.RawInputSchema) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(tool.RawInputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid raw input schema: %w", err)
		}
		return schema, nil
	}
	properties := tool.InputSchema.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	return core.ObjectSchema(properties, tool.InputSchema.Required...), nil
}

func missingRequired(tool mcp.Tool, args core.Args) string {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return ""
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return key
		}
	}
	return ""
}

func toResult(result *mcp.CallToolResult) core.Result {
	if result == nil {
		return core.Failure("MCP tool returned no result")
	}
	text := textContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "MCP tool reported an error"
		}
		return core.Failure(text)
	}
	if text != "" {
		return core.Success(text)
	}
	if result.StructuredContent != nil {
		data, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return core.Failuref("MCP tool returned unencodable content: %v", err)
		}
		return core.Success(string(data))
	}
	return core.Success("")
}

func textContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ core.Operation = (*OperationAdapter)(nil)
