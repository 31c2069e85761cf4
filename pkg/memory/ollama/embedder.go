// Package ollama embeds knowledge snippets with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jllopis/steward/pkg/llm"
	"github.com/jllopis/steward/pkg/memory"
	"github.com/jllopis/steward/pkg/telemetry"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "nomic-embed-text"

// Embedder calls POST /api/embeddings.
type Embedder struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewEmbedder returns an Embedder for baseURL and model. Empty values fall
// back to llm.DefaultOllamaURL and DefaultModel.
func NewEmbedder(baseURL, model string) *Embedder {
	if baseURL == "" {
		baseURL = llm.DefaultOllamaURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/embeddings",
		model:    model,
		client:   &http.Client{Timeout: time.Minute},
	}
}

// Embed returns the vector for text. Non-200 answers come back as
// *llm.StatusError so the breaker and the retrier classify them.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "memory.embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("gen_ai.request.model", e.model),
		attribute.Int("steward.memory.text_len", len(text)),
	)

	vec, err := e.embed(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return vec, nil
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"model": e.model, "prompt": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, llm.NewStatusError("ollama", resp.StatusCode, string(msg), nil)
	}

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama embedding: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned no embedding for model %s", e.model)
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

var _ memory.Embedder = (*Embedder)(nil)
