package llm

import (
	"context"
	"sync"
)

// MockProvider answers every request with the same reply. Per-model errors
// let tests drive the fallback chain without scripting call order.
type MockProvider struct {
	// Response is the reply content.
	Response string
	// Err fails every call when set.
	Err error
	// ModelErrors fails calls for the named models.
	ModelErrors map[string]error
	// ChatFunc, when set, replaces the canned behaviour.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu     sync.Mutex
	models []string
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.models = append(m.models, req.Model)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if err := m.ModelErrors[req.Model]; err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// Models returns the model of every request received, in order.
func (m *MockProvider) Models() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.models...)
}
