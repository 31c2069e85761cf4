package delegation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/steward/pkg/errors"
)

func writeProfile(t *testing.T, storage string, p Profile) {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	path := ProfilePath(storage, p.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadProfile(t *testing.T) {
	storage := t.TempDir()
	want := Profile{ID: "zilla", Name: "Zilla", Role: "Researcher", Tools: []string{"web_search", "write_file"}, OutputFormat: "structured_json"}
	writeProfile(t, storage, want)

	got, err := LoadProfile(storage, "Zilla")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadProfileErrors(t *testing.T) {
	storage := t.TempDir()
	writeProfile(t, storage, Profile{ID: "other", Name: "X", Role: "Y"})
	if err := os.Rename(ProfilePath(storage, "other"), ProfilePath(storage, "mismatch")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ProfilePath(storage, "broken"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeProfile(t, storage, Profile{ID: "noname", Role: "Y"})

	tests := []struct {
		id   string
		code errors.ErrorCode
	}{
		{"missing", errors.CodeProfileNotFound},
		{"broken", errors.CodeProfileInvalid},
		{"mismatch", errors.CodeProfileInvalid},
		{"noname", errors.CodeProfileInvalid},
		{"../etc/passwd", errors.CodeProfileInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := LoadProfile(storage, tt.id)
			if !errors.Is(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}

	_, err := LoadProfile(storage, "missing")
	if !strings.Contains(err.Error(), "create_agent_config") {
		t.Errorf("not-found message should point at create_agent_config: %v", err)
	}
}

func TestValidateAgentID(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"zilla", true},
		{"research-agent-1", true},
		{"", false},
		{strings.Repeat("a", 51), false},
		{strings.Repeat("a", 50), true},
		{"Zilla", false},
		{"under_score", false},
		{"-lead", false},
		{"trail-", false},
		{"double--dash", false},
	}
	for _, tt := range tests {
		if err := ValidateAgentID(tt.id); (err == nil) != tt.ok {
			t.Errorf("ValidateAgentID(%q) = %v, want ok=%v", tt.id, err, tt.ok)
		}
	}
}

func TestFactoryCreateTemplate(t *testing.T) {
	storage := t.TempDir()
	f := NewFactory(storage)

	p, path, err := f.Create(context.Background(), CreateRequest{
		AgentID:     "my-writer",
		Template:    "gonza",
		Constraints: []string{"Write in Spanish", "MUST save all output to specified files"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if path != ProfilePath(storage, "my-writer") {
		t.Errorf("unexpected path %s", path)
	}
	if p.Name != "gonza" || !strings.HasPrefix(p.Role, "Journalistic Writer") {
		t.Errorf("template defaults not applied: %+v", p)
	}
	if diff := cmp.Diff([]string{"read_file", "write_file"}, p.Tools); diff != "" {
		t.Errorf("tools mismatch:\n%s", diff)
	}
	if len(p.Constraints) != len(DefaultConstraints)+1 || p.Constraints[len(p.Constraints)-1] != "Write in Spanish" {
		t.Errorf("constraints should be defaults plus extras without duplicates: %v", p.Constraints)
	}

	loaded, err := LoadProfile(storage, "my-writer")
	if err != nil {
		t.Fatalf("created profile should load: %v", err)
	}
	if diff := cmp.Diff(p, loaded); diff != "" {
		t.Errorf("round trip mismatch:\n%s", diff)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFactoryCreateRejects(t *testing.T) {
	f := NewFactory(t.TempDir())
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRequest
		want string
	}{
		{"bad id", CreateRequest{AgentID: "Bad Id", Name: "n", Role: "r", Tools: []string{"read_file"}}, "Invalid agent_id"},
		{"unknown template", CreateRequest{AgentID: "x", Template: "ghost"}, "Unknown template 'ghost'"},
		{"hallucinated tool", CreateRequest{AgentID: "x", Name: "n", Role: "r", Tools: []string{"read_file", "launch_rockets"}}, "Invalid tools requested: launch_rockets"},
		{"no tools", CreateRequest{AgentID: "x", Name: "n", Role: "r"}, "At least one tool"},
		{"no name", CreateRequest{AgentID: "x", Role: "r", Tools: []string{"read_file"}}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.Create(ctx, tt.req)
			if !errors.Is(err, errors.CodeInvalidInput) || !strings.Contains(Reason(err), tt.want) {
				t.Fatalf("expected invalid input containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestFactoryOperation(t *testing.T) {
	storage := t.TempDir()
	op := NewFactory(storage).Operation()

	res := op.Execute(context.Background(), map[string]any{
		"agent_id": "scout",
		"name":     "Scout",
		"role":     "Finds files",
		"tools":    []any{"glob", "read_file", "glob"},
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	if !strings.Contains(res.Content, "Agent 'scout' created successfully") || !strings.Contains(res.Content, "Tools: glob, read_file") {
		t.Fatalf("unexpected report %q", res.Content)
	}

	res = op.Execute(context.Background(), map[string]any{"agent_id": "scout2", "name": "n", "role": "r"})
	if !res.IsError || !strings.Contains(res.Content, "tools") {
		t.Fatalf("expected missing tools error, got %+v", res)
	}
}
