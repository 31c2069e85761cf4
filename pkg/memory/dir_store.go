package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DirStore reads markdown notes from a directory. Each *.md file is one
// document whose source is the file name without extension.
type DirStore struct {
	dir string
}

// NewDirStore creates a store over dir. The directory need not exist.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Dir returns the directory the store reads.
func (d *DirStore) Dir() string { return d.dir }

// Documents returns every markdown file in the directory, sorted by name.
// A missing directory yields no documents and no error.
func (d *DirStore) Documents(ctx context.Context, _ string) ([]Document, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read memory dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.dir, e.Name()))
		if err != nil {
			continue
		}
		docs = append(docs, Document{
			Source:  strings.TrimSuffix(e.Name(), ".md"),
			Content: string(data),
		})
	}
	return docs, nil
}

// Add appends doc to <source>.md under a timestamped heading.
func (d *DirStore) Add(_ context.Context, doc Document) error {
	if doc.Source == "" {
		doc.Source = "notes"
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(d.dir, doc.Source+".md"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "## %s\n\n%s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"), strings.TrimSpace(doc.Content))
	return err
}

var (
	_ Store  = (*DirStore)(nil)
	_ Writer = (*DirStore)(nil)
)
