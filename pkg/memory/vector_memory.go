package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VectorMemory is a Store backed by a vector database: the query is embedded
// and the nearest points come back as documents.
type VectorMemory struct {
	store      VectorStore
	embedder   Embedder
	collection string
	limit      int
	threshold  float32
}

// VectorOption configures a VectorMemory.
type VectorOption func(*VectorMemory)

// WithSearchLimit sets how many points a query returns.
func WithSearchLimit(n int) VectorOption {
	return func(vm *VectorMemory) {
		if n > 0 {
			vm.limit = n
		}
	}
}

// WithScoreThreshold sets the minimum similarity score.
func WithScoreThreshold(s float32) VectorOption {
	return func(vm *VectorMemory) { vm.threshold = s }
}

// NewVectorMemory creates a VectorMemory over an existing collection.
// Call Initialize to create the collection.
func NewVectorMemory(store VectorStore, embedder Embedder, collection string, opts ...VectorOption) *VectorMemory {
	vm := &VectorMemory{
		store:      store,
		embedder:   embedder,
		collection: collection,
		limit:      10,
		threshold:  0.3,
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Initialize ensures the collection exists, sizing it from a sample embedding.
// A failed create is tolerated when the collection is already searchable.
func (vm *VectorMemory) Initialize(ctx context.Context) error {
	vec, err := vm.embedder.Embed(ctx, "hello")
	if err != nil {
		return fmt.Errorf("failed to get embedding dimension: %w", err)
	}
	if err := vm.store.CreateCollection(ctx, vm.collection, uint64(len(vec))); err != nil {
		if _, searchErr := vm.store.Search(ctx, vm.collection, vec, 1, 0); searchErr == nil {
			return nil
		}
		return err
	}
	return nil
}

// Add embeds doc and stores it as a new point.
func (vm *VectorMemory) Add(ctx context.Context, doc Document) error {
	vector, err := vm.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to embed text: %w", err)
	}

	now := time.Now().Unix()
	point := Point{
		ID:     uuid.New().String(),
		Vector: vector,
		Payload: map[string]any{
			PayloadText:      doc.Content,
			PayloadSource:    doc.Source,
			PayloadTimestamp: now,
		},
		Timestamp: now,
	}
	if err := vm.store.Upsert(ctx, vm.collection, []Point{point}); err != nil {
		return fmt.Errorf("failed to store point: %w", err)
	}
	return nil
}

// Documents returns the points nearest to query. Points without text are
// skipped; a point without a source is named by its id.
func (vm *VectorMemory) Documents(ctx context.Context, query string) ([]Document, error) {
	vector, err := vm.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := vm.store.Search(ctx, vm.collection, vector, vm.limit, vm.threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		text, ok := r.Point.Payload[PayloadText].(string)
		if !ok || text == "" {
			continue
		}
		source, _ := r.Point.Payload[PayloadSource].(string)
		if source == "" {
			source = r.ID
		}
		docs = append(docs, Document{Source: source, Content: text})
	}
	return docs, nil
}

var (
	_ Store  = (*VectorMemory)(nil)
	_ Writer = (*VectorMemory)(nil)
)
