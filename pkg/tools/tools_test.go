package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/steward/pkg/core"
)

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	return ws
}

func writeFixture(t *testing.T, ws *Workspace, rel, content string) string {
	t.Helper()
	p := filepath.Join(ws.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p
}

func run(op core.Operation, args core.Args) core.Result {
	return op.Execute(context.Background(), args)
}

func TestOperationsDescriptors(t *testing.T) {
	ws := newWorkspace(t)
	var names []string
	for _, op := range Operations(ws) {
		names = append(names, op.Descriptor().Name)
	}
	want := []string{OpReadFile, OpWriteFile, OpEditFile, OpListFiles, OpGlob, OpVerifyFileExists}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("operation names mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	ws := newWorkspace(t)
	outside := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../secret.txt"},
		{"nested traversal", "a/../../secret.txt"},
		{"absolute outside", filepath.Join(outside, "x.txt")},
		{"empty", ""},
		{"null byte", "a\x00b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ws.Resolve(tt.path); err == nil {
				t.Errorf("expected %q to be rejected", tt.path)
			}
		})
	}

	if err := os.Symlink(outside, filepath.Join(ws.Root(), "link")); err == nil {
		if _, err := ws.Resolve("link/file.txt"); err == nil {
			t.Errorf("expected symlink escape to be rejected")
		}
	}
}

func TestResolveInside(t *testing.T) {
	ws := newWorkspace(t)
	got, err := ws.Resolve("tasks/new/out.json")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join(ws.Root(), "tasks", "new", "out.json"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if ws.Rel(got) != "tasks/new/out.json" {
		t.Errorf("unexpected Rel: %s", ws.Rel(got))
	}
}

func TestWriteAndReadFile(t *testing.T) {
	ws := newWorkspace(t)

	res := run(WriteFile(ws), core.Args{"path": "tasks/research.json", "content": "line1\nline2\nline3\n"})
	if res.IsError {
		t.Fatalf("write failed: %s", res.Content)
	}
	if !strings.Contains(res.Content, "Wrote 18 bytes to tasks/research.json") {
		t.Errorf("unexpected write message: %s", res.Content)
	}

	res = run(ReadFile(ws), core.Args{"path": "tasks/research.json"})
	if res.IsError || res.Content != "line1\nline2\nline3\n" {
		t.Fatalf("unexpected read: %+v", res)
	}

	res = run(ReadFile(ws), core.Args{"path": "tasks/research.json", "offset": float64(2), "limit": float64(1)})
	if res.Content != "line2\n" {
		t.Errorf("expected line window, got %q", res.Content)
	}

	entries, _ := os.ReadDir(filepath.Join(ws.Root(), "tasks"))
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestReadFileErrors(t *testing.T) {
	ws := newWorkspace(t)
	writeFixture(t, ws, "dir/file.txt", "x")

	tests := []struct {
		name string
		args core.Args
		want string
	}{
		{"missing path", core.Args{}, "Missing required parameter: path"},
		{"not found", core.Args{"path": "nope.txt"}, "File not found: nope.txt"},
		{"directory", core.Args{"path": "dir"}, "is a directory"},
		{"escape", core.Args{"path": "../x"}, "Invalid path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(ReadFile(ws), tt.args)
			if !res.IsError || !strings.Contains(res.Content, tt.want) {
				t.Errorf("expected error containing %q, got %+v", tt.want, res)
			}
		})
	}
}

func TestWriteFileMissingContent(t *testing.T) {
	ws := newWorkspace(t)
	res := run(WriteFile(ws), core.Args{"path": "a.txt"})
	if !res.IsError || res.Content != "Missing required parameter: content" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestEditFile(t *testing.T) {
	ws := newWorkspace(t)
	p := writeFixture(t, ws, "notes.md", "alpha beta alpha\n")

	res := run(EditFile(ws), core.Args{"path": "notes.md", "old_string": "alpha", "new_string": "gamma"})
	if !res.IsError || !strings.Contains(res.Content, "appears 2 times") {
		t.Fatalf("expected ambiguity error, got %+v", res)
	}

	res = run(EditFile(ws), core.Args{"path": "notes.md", "old_string": "beta", "new_string": "delta"})
	if res.IsError {
		t.Fatalf("edit failed: %s", res.Content)
	}
	data, _ := os.ReadFile(p)
	if string(data) != "alpha delta alpha\n" {
		t.Errorf("unexpected content: %q", data)
	}

	res = run(EditFile(ws), core.Args{"path": "notes.md", "old_string": "alpha", "new_string": "omega", "replace_all": true})
	if res.IsError || res.Content != "Replaced 2 occurrence(s) in notes.md" {
		t.Fatalf("unexpected replace_all result: %+v", res)
	}
	data, _ = os.ReadFile(p)
	if string(data) != "omega delta omega\n" {
		t.Errorf("unexpected content: %q", data)
	}

	res = run(EditFile(ws), core.Args{"path": "notes.md", "old_string": "zzz", "new_string": "y"})
	if !res.IsError || !strings.Contains(res.Content, "not found") {
		t.Errorf("expected not found, got %+v", res)
	}
}

func TestVerifyFileExists(t *testing.T) {
	ws := newWorkspace(t)
	writeFixture(t, ws, "out.json", `{"ok":true}`)
	writeFixture(t, ws, "empty.txt", "")

	tests := []struct {
		path    string
		isError bool
		want    string
	}{
		{"out.json", false, "File exists: out.json (11 bytes)"},
		{"empty.txt", true, "File exists but is empty: empty.txt"},
		{"missing.json", true, "File does not exist: missing.json"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := run(VerifyFileExists(ws), core.Args{"path": tt.path})
			if res.IsError != tt.isError || res.Content != tt.want {
				t.Errorf("expected (%v, %q), got %+v", tt.isError, tt.want, res)
			}
		})
	}
}

func TestGlob(t *testing.T) {
	ws := newWorkspace(t)
	old := writeFixture(t, ws, "tasks/a.json", "{}")
	writeFixture(t, ws, "tasks/deep/b.json", "{}")
	writeFixture(t, ws, "tasks/c.md", "# c")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	res := run(Glob(ws), core.Args{"pattern": "**/*.json"})
	if res.IsError {
		t.Fatalf("glob failed: %s", res.Content)
	}
	got := strings.Split(strings.TrimSpace(res.Content), "\n")
	if diff := cmp.Diff([]string{"tasks/deep/b.json", "tasks/a.json"}, got); diff != "" {
		t.Errorf("glob mismatch (-want +got):\n%s", diff)
	}

	res = run(Glob(ws), core.Args{"pattern": "*.{json,md}", "path": "tasks"})
	got = strings.Split(strings.TrimSpace(res.Content), "\n")
	if len(got) != 2 {
		t.Errorf("expected 2 matches in tasks/, got %v", got)
	}

	res = run(Glob(ws), core.Args{"pattern": "**/*.go"})
	if res.IsError || res.Content != "(no matches)" {
		t.Errorf("expected no matches, got %+v", res)
	}

	res = run(Glob(ws), core.Args{"pattern": "[unclosed"})
	if !res.IsError {
		t.Errorf("expected invalid pattern error")
	}
}

func TestListFiles(t *testing.T) {
	ws := newWorkspace(t)
	writeFixture(t, ws, "agents/zilla.json", "{}")
	writeFixture(t, ws, "readme.md", "# r")
	writeFixture(t, ws, ".hidden/x", "x")

	res := run(ListFiles(ws), core.Args{})
	if diff := cmp.Diff("agents/\nreadme.md\n", res.Content); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}

	res = run(ListFiles(ws), core.Args{"recursive": true})
	if diff := cmp.Diff("agents/\nagents/zilla.json\nreadme.md\n", res.Content); diff != "" {
		t.Errorf("recursive listing mismatch (-want +got):\n%s", diff)
	}

	res = run(ListFiles(ws), core.Args{"path": "readme.md"})
	if !res.IsError || !strings.Contains(res.Content, "is not a directory") {
		t.Errorf("expected not a directory error, got %+v", res)
	}
}
