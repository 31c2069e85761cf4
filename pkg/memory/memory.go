// Package memory provides the knowledge stores read by the memory injector
// and the token-overlap helpers used to pick snippets from them.
package memory

import (
	"context"
	"errors"
)

// ErrNotFound indicates no matching item was found.
var ErrNotFound = errors.New("memory: not found")

// Document is one unit of stored knowledge. Source names where it came from,
// such as a file stem or a vector point id.
type Document struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Store returns the documents worth scanning for query. Stores may ignore the
// query and return everything; callers score the result themselves.
type Store interface {
	Documents(ctx context.Context, query string) ([]Document, error)
}

// Writer is implemented by stores that accept new documents.
type Writer interface {
	Add(ctx context.Context, doc Document) error
}
