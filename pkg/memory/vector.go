package memory

import "context"

// VectorStore is the backend of VectorMemory. qdrant.Store implements it.
type VectorStore interface {
	// CreateCollection creates the collection when it does not exist yet.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns up to limit points scoring at least scoreThreshold,
	// best first.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
}

// Embedder turns text into a vector. All vectors of one collection must
// come from the same model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Point is a stored snippet. Payload carries the keys below.
type Point struct {
	ID        string         `json:"id"`
	Vector    []float32      `json:"vector"`
	Payload   map[string]any `json:"payload"`
	Timestamp int64          `json:"timestamp"`
}

// SearchResult is one hit of VectorStore.Search.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

const (
	PayloadText      = "text"
	PayloadSource    = "source"
	PayloadTimestamp = "timestamp"
)
