package memory

import (
	"context"
	"sync"
)

// InMemory is a simple in-process knowledge store.
type InMemory struct {
	mu   sync.RWMutex
	docs []Document
}

// NewInMemory creates a store holding docs.
func NewInMemory(docs ...Document) *InMemory {
	return &InMemory{docs: append([]Document(nil), docs...)}
}

// Add appends a document.
func (m *InMemory) Add(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
	return nil
}

// Documents returns a copy of every stored document.
func (m *InMemory) Documents(_ context.Context, _ string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Document(nil), m.docs...), nil
}

// Len returns the number of stored documents.
func (m *InMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

var (
	_ Store  = (*InMemory)(nil)
	_ Writer = (*InMemory)(nil)
)
