// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic provides an Anthropic Claude provider for steward.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jllopis/steward/pkg/llm"
)

const providerName = "anthropic"

// Provider implements llm.Provider for the Anthropic Messages API.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	opts      []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithMaxTokens sets the maximum tokens for responses.
func WithMaxTokens(tokens int64) Option {
	return func(p *Provider) { p.maxTokens = tokens }
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.opts = append(p.opts, option.WithBaseURL(url)) }
}

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) { p.opts = append(p.opts, option.WithAPIKey(apiKey)) }
}

// New creates a new Anthropic provider.
// The API key is read from ANTHROPIC_API_KEY unless WithAPIKey is given.
// Retries are left to the resilience layer, so the SDK's own retries are off.
func New(opts ...Option) *Provider {
	p := &Provider{
		model:     "claude-sonnet-4-20250514",
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = anthropic.NewClient(append([]option.RequestOption{option.WithMaxRetries(0)}, p.opts...)...)
	return p
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	system, messages := convertMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, convertTool(tool))
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, llm.NewStatusError(providerName, apiErr.StatusCode, apiErr.Error(), err)
		}
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	return convertResponse(message), nil
}

// convertMessages splits the system text off the conversation. System turns
// are joined with blank lines. Consecutive tool results are folded into one
// user turn, which is how the Messages API expects the answers to a
// multi-call assistant turn.
func convertMessages(msgs []llm.Message) (string, []anthropic.MessageParam) {
	var (
		system []string
		out    = make([]anthropic.MessageParam, 0, len(msgs))
	)
	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleSystem:
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
		case llm.RoleTool:
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)
			if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleUser && isToolResults(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthropic.NewUserMessage(block))
		case llm.RoleAssistant:
			out = append(out, assistantMessage(msg))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return strings.Join(system, "\n\n"), out
}

func isToolResults(m anthropic.MessageParam) bool {
	for _, b := range m.Content {
		if b.OfToolResult == nil {
			return false
		}
	}
	return len(m.Content) > 0
}

// assistantMessage drops empty text, which the API rejects next to tool_use
// blocks.
func assistantMessage(msg llm.Message) anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		input := map[string]any{}
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
	}
	return anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks}
}

func convertTool(tool llm.Tool) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{}
	if params, ok := tool.Function.Parameters.(map[string]any); ok {
		schema.Properties = params["properties"]
		if required, ok := params["required"]; ok {
			schema.ExtraFields = map[string]any{"required": required}
		}
	}
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        tool.Function.Name,
			Description: anthropic.String(tool.Function.Description),
			InputSchema: schema,
		},
	}
}

func convertResponse(message *anthropic.Message) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:   block.ID,
				Type: llm.ToolTypeFunction,
				Function: llm.FunctionCall{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}
	return resp
}

var _ llm.Provider = (*Provider)(nil)
