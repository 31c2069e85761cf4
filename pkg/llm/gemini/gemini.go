// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini provides a Google Gemini API provider for steward.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/jllopis/steward/pkg/llm"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.5-flash"
)

// Provider implements llm.Provider for Google Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// New creates a new Gemini provider. An empty apiKey lets the SDK read
// GOOGLE_API_KEY or GEMINI_API_KEY from the environment.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	p := &Provider{
		client: client,
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	contents, system := convertMessages(req.Messages)

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: convertTools(req.Tools)}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, mapError(err)
	}
	return convertResponse(resp), nil
}

func mapError(err error) error {
	if apiErr, ok := asAPIError(err); ok {
		return llm.NewStatusError(providerName, apiErr.Code, apiErr.Message, err)
	}
	return fmt.Errorf("gemini generate content: %w", err)
}

// asAPIError matches both the value and the pointer form; the SDK has
// returned each across versions.
func asAPIError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}

// Gemini answers function calls by name. A ToolCall id is the function name,
// followed by "#" and the call id when the model issued one.
func toolCallID(fc *genai.FunctionCall) string {
	if fc.ID == "" {
		return fc.Name
	}
	return fc.Name + "#" + fc.ID
}

// convertMessages returns the contents and the system instruction. System
// turns are joined with blank lines. Consecutive tool results share one
// user content so parallel calls are answered together.
func convertMessages(messages []llm.Message) ([]*genai.Content, string) {
	var (
		system   []string
		contents = make([]*genai.Content, 0, len(messages))
		results  *genai.Content
	)
	for _, msg := range messages {
		if msg.Role != llm.RoleTool {
			results = nil
		}
		switch msg.Role {
		case llm.RoleSystem:
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
		case llm.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case llm.RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				name, id, _ := strings.Cut(tc.ID, "#")
				if name == "" {
					name = tc.Function.Name
				}
				args := map[string]any{}
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: id, Name: name, Args: args},
				})
			}
			contents = append(contents, content)
		case llm.RoleTool:
			name, id, _ := strings.Cut(msg.ToolCallID, "#")
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil || response == nil {
				response = map[string]any{"result": msg.Content}
			}
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{ID: id, Name: name, Response: response}}
			if results == nil {
				results = &genai.Content{Role: genai.RoleUser}
				contents = append(contents, results)
			}
			results.Parts = append(results.Parts, part)
		}
	}
	return contents, strings.Join(system, "\n\n")
}

func convertTools(tools []llm.Tool) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schema *genai.Schema
		if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
			_ = json.Unmarshal(raw, &schema)
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  schema,
		})
	}
	return out
}

func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	out := &llm.ChatResponse{}
	if resp == nil {
		return out
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		out.Content += part.Text
		if fc := part.FunctionCall; fc != nil {
			args, _ := json.Marshal(fc.Args)
			if fc.Args == nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:       toolCallID(fc),
				Type:     llm.ToolTypeFunction,
				Function: llm.FunctionCall{Name: fc.Name, Arguments: string(args)},
			})
		}
	}
	return out
}

var _ llm.Provider = (*Provider)(nil)
