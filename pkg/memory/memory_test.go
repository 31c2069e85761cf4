package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeNotes(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"solutions.md": "## 2026-02-15 10:00:00 UTC\n\nFixed the scheduler cron expression by using 6-field format instead of 5-field. The seconds field must be added first.\n\n## 2026-02-10 08:00:00 UTC\n\nResolved database connection pooling by setting max connections to 10.\n",
		"errors.md":    "## 2026-02-14 12:00:00 UTC\n\nError: webhook server failed to bind port 8080 because it was already in use.\n",
		"ignored.txt":  "scheduler cron expression",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestDirStoreDocuments(t *testing.T) {
	dir := t.TempDir()
	writeNotes(t, dir)

	docs, err := NewDirStore(dir).Documents(context.Background(), "anything")
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	var sources []string
	for _, d := range docs {
		sources = append(sources, d.Source)
	}
	if diff := cmp.Diff([]string{"errors", "solutions"}, sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
}

func TestDirStoreMissingDir(t *testing.T) {
	docs, err := NewDirStore(filepath.Join(t.TempDir(), "nope")).Documents(context.Background(), "")
	if err != nil || docs != nil {
		t.Fatalf("expected no documents and no error, got %v, %v", docs, err)
	}
}

func TestDirStoreAdd(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "memory")
	store := NewDirStore(dir)
	if err := store.Add(context.Background(), Document{Content: "remember the milk"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	docs, err := store.Documents(context.Background(), "")
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Source != "notes" || !strings.Contains(docs[0].Content, "remember the milk") {
		t.Fatalf("unexpected documents: %+v", docs)
	}
}

func TestInMemory(t *testing.T) {
	store := NewInMemory(Document{Source: "a", Content: "alpha"})
	_ = store.Add(context.Background(), Document{Source: "b", Content: "beta"})

	docs, err := store.Documents(context.Background(), "")
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	want := []Document{{Source: "a", Content: "alpha"}, {Source: "b", Content: "beta"}}
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Errorf("documents mismatch (-want +got):\n%s", diff)
	}

	docs[0].Content = "mutated"
	if again, _ := store.Documents(context.Background(), ""); again[0].Content != "alpha" {
		t.Errorf("Documents should return a copy")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 documents, got %d", store.Len())
	}
}

func TestExtractWords(t *testing.T) {
	got := ExtractWords("Fix the SCHEDULER cron-expression, a to be or_not; one two six ten 123 abcd efgh ijkl mnop")
	want := []string{"fix", "the", "scheduler", "cron", "expression", "or_not", "one", "two", "six", "ten"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("words mismatch (-want +got):\n%s", diff)
	}
	if len(ExtractWords("a b c")) != 0 {
		t.Errorf("short words should be dropped")
	}
}

func TestBestParagraph(t *testing.T) {
	content := "intro about nothing\n\nthe scheduler runs daily\n\nscheduler cron expression uses six fields"
	words := ExtractWords("scheduler cron expression")

	p, n, ok := BestParagraph(content, words, 2)
	if !ok || n != 3 || p != "scheduler cron expression uses six fields" {
		t.Fatalf("unexpected best paragraph %q (%d, %v)", p, n, ok)
	}
	if _, _, ok := BestParagraph("the scheduler only", words, 2); ok {
		t.Fatalf("a single shared word should not qualify")
	}
	if CountMatches("SCHEDULER and Cron", words) != 2 {
		t.Errorf("matching should ignore case")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("héllo wörld", 5); got != "héllo..." {
		t.Errorf("unexpected truncation %q", got)
	}
	if got := TruncateRunes("short", 10); got != "short" {
		t.Errorf("unexpected truncation %q", got)
	}
}
