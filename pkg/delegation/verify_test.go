package delegation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/steward/pkg/errors"
)

func TestVerifyOutput(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		format  string
		wantErr string
	}{
		{"missing", filepath.Join(dir, "nope.json"), "", "File does not exist"},
		{"empty", write("empty.txt", ""), "", "File exists but is empty"},
		{"empty with format", write("empty.json", ""), FormatStructuredJSON, "File exists but is empty"},
		{"error marker", write("err.txt", "ERROR: could not reach the site"), "", "File contains error: ERROR: could not"},
		{"error field", write("errfield.json", `{"error": "rate limited"}`), FormatJSON, "File contains error"},
		{"bad json", write("bad.json", "{not json"), FormatStructuredJSON, "not valid JSON"},
		{"good json", write("good.json", `{"summary": "ok"}`), FormatStructuredJSON, ""},
		{"no format", write("plain.txt", "{not json"), "", ""},
		{"text format", write("notes.txt", "x"), FormatText, ""},
		{"short markdown", write("short.md", "hi"), FormatMarkdownArticle, "valid markdown"},
		{"flat markdown", write("flat.md", "no markers in this sentence"), FormatMarkdown, "valid markdown"},
		{"markdown", write("post.md", "# Title\n\nBody text here."), FormatMarkdownArticle, ""},
		{"binary", write("blob.bin", "\xff\xfe\x00\x01"), FormatStructuredJSON, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := VerifyOutput(tt.path, tt.format)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if size <= 0 {
					t.Fatalf("expected a positive size, got %d", size)
				}
				return
			}
			if !errors.Is(err, errors.CodeOutputInvalid) {
				t.Fatalf("expected output invalid, got %v", err)
			}
			if !strings.Contains(Reason(err), tt.wantErr) {
				t.Fatalf("expected reason containing %q, got %q", tt.wantErr, Reason(err))
			}
		})
	}
}

func TestVerifyOutputErrorPreviewIsBounded(t *testing.T) {
	p := filepath.Join(t.TempDir(), "long.txt")
	if err := os.WriteFile(p, []byte("ERROR: "+strings.Repeat("x", 500)), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := VerifyOutput(p, "")
	reason := strings.TrimPrefix(Reason(err), "File contains error: ")
	if len(reason) != errorPreviewRunes {
		t.Fatalf("expected %d chars of preview, got %d", errorPreviewRunes, len(reason))
	}
}
