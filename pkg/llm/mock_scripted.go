package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ScriptStep is one scripted reply: either a response or an error.
type ScriptStep struct {
	Response *ChatResponse
	Err      error
}

// ScriptedMockProvider is a mock provider that returns a pre-defined sequence of replies.
// Useful for testing multi-turn tool-calling loops.
type ScriptedMockProvider struct {
	mu    sync.Mutex
	steps []ScriptStep
	Err   error
	// CallCount tracks how many times Chat has been called
	CallCount int
	// Requests records every request received, in order.
	Requests []ChatRequest
}

// NewScriptedMockProvider creates a provider replying with the given texts in order.
// The model argument is ignored by the mock.
func NewScriptedMockProvider(model string, responses ...string) *ScriptedMockProvider {
	s := &ScriptedMockProvider{}
	for _, r := range responses {
		s.AddResponse(r)
	}
	return s
}

// Chat pops the next scripted step or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.steps) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// AddResponse appends a plain text reply to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.push(ScriptStep{Response: &ChatResponse{
		Content: response,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}})
}

// AddToolCall appends a reply asking for a single tool call.
func (s *ScriptedMockProvider) AddToolCall(name string, args map[string]any) {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}
	s.mu.Lock()
	id := fmt.Sprintf("call_%d", len(s.steps)+s.CallCount)
	s.mu.Unlock()
	s.push(ScriptStep{Response: &ChatResponse{
		ToolCalls: []ToolCall{{
			ID:       id,
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: name, Arguments: string(raw)},
		}},
	}})
}

// AddReply appends an arbitrary response.
func (s *ScriptedMockProvider) AddReply(resp *ChatResponse) {
	s.push(ScriptStep{Response: resp})
}

// AddError appends a failing reply.
func (s *ScriptedMockProvider) AddError(err error) {
	s.push(ScriptStep{Err: err})
}

// Remaining returns how many scripted steps are left.
func (s *ScriptedMockProvider) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

func (s *ScriptedMockProvider) push(step ScriptStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}
