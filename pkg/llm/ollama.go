package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider talks to the Ollama /api/chat endpoint without streaming.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// NewOllama returns a provider for the server at baseURL, or
// DefaultOllamaURL when empty.
func NewOllama(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []Tool          `json:"tools,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	// ToolName tells the model which function a tool result belongs to.
	ToolName string `json:"tool_name,omitempty"`
}

// ollamaToolCall carries arguments as a JSON object, not a string.
type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// Chat implements Provider. Non-200 answers are returned as *StatusError.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := ollamaRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.Messages),
		Tools:    req.Tools,
	}
	if req.Temperature != 0 {
		body.Options = map[string]any{"temperature": req.Temperature}
	}

	var out ollamaResponse
	if err := p.post(ctx, "/api/chat", body, &out); err != nil {
		return nil, err
	}
	return &ChatResponse{
		Content:   out.Message.Content,
		ToolCalls: fromOllamaToolCalls(out.Message.ToolCalls),
		Usage: Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}

func (p *OllamaProvider) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ollama: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(raw))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return NewStatusError("ollama", resp.StatusCode, msg, nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode %s response: %w", path, err)
	}
	return nil
}

func toOllamaMessages(msgs []Message) []ollamaMessage {
	callNames := make(map[string]string)
	out := make([]ollamaMessage, 0, len(msgs))
	for _, m := range msgs {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			callNames[tc.ID] = tc.Function.Name
			var call ollamaToolCall
			call.Function.Name = tc.Function.Name
			call.Function.Arguments = json.RawMessage(orEmptyObject(tc.Function.Arguments))
			om.ToolCalls = append(om.ToolCalls, call)
		}
		if m.Role == RoleTool {
			om.ToolName = callNames[m.ToolCallID]
		}
		out = append(out, om)
	}
	return out
}

// fromOllamaToolCalls numbers the calls since Ollama does not issue ids.
func fromOllamaToolCalls(calls []ollamaToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		out[i] = ToolCall{
			ID:   fmt.Sprintf("call_%d", i),
			Type: ToolTypeFunction,
			Function: FunctionCall{
				Name:      c.Function.Name,
				Arguments: orEmptyObject(string(c.Function.Arguments)),
			},
		}
	}
	return out
}

func orEmptyObject(args string) string {
	if args == "" || args == "null" {
		return "{}"
	}
	return args
}

var _ Provider = (*OllamaProvider)(nil)
