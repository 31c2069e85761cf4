// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package anthropic

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/steward/pkg/llm"
)

func TestNewProvider(t *testing.T) {
	p := New(WithAPIKey("test-key"))
	if p.model != "claude-sonnet-4-20250514" {
		t.Errorf("expected default model, got %s", p.model)
	}
	if p.maxTokens != 4096 {
		t.Errorf("expected maxTokens 4096, got %d", p.maxTokens)
	}
	p = New(WithAPIKey("k"), WithModel("claude-opus-4-20250514"), WithMaxTokens(8192))
	if p.model != "claude-opus-4-20250514" || p.maxTokens != 8192 {
		t.Errorf("options not applied: %s %d", p.model, p.maxTokens)
	}
}

func TestConvertMessages(t *testing.T) {
	system, msgs := convertMessages([]llm.Message{
		llm.SystemMessage("You are zilla."),
		llm.SystemMessage("Use only your tools."),
		llm.UserMessage("Research Go"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "toolu_1", Function: llm.FunctionCall{Name: "web_search", Arguments: `{"query":"go"}`}},
			{ID: "toolu_2", Function: llm.FunctionCall{Name: "read_file", Arguments: ""}},
		}},
		llm.ToolResultMessage("toolu_1", "results"),
		llm.ToolResultMessage("toolu_2", "contents"),
		{Role: llm.RoleAssistant, Content: "Done"},
	})

	if system != "You are zilla.\n\nUse only your tools." {
		t.Errorf("unexpected system text %q", system)
	}
	var roles []string
	for _, m := range msgs {
		roles = append(roles, string(m.Role))
	}
	if diff := cmp.Diff([]string{"user", "assistant", "user", "assistant"}, roles); diff != "" {
		t.Fatalf("roles mismatch (-want +got):\n%s", diff)
	}
	if n := len(msgs[1].Content); n != 2 {
		t.Errorf("tool-call turn should hold only the two tool_use blocks, got %d", n)
	}
	if n := len(msgs[2].Content); n != 2 || !isToolResults(msgs[2]) {
		t.Errorf("tool results should share one user turn, got %d blocks", n)
	}
	if isToolResults(msgs[0]) {
		t.Error("plain user text is not a tool result turn")
	}
}

func TestChatOverloadedMapsToStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
		})
	}))
	defer srv.Close()

	p := New(WithAPIKey("k"), WithBaseURL(srv.URL))
	_, err := p.Chat(t.Context(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !llm.IsOverloaded(err) {
		t.Fatalf("expected overload classification, got %v", err)
	}
}
