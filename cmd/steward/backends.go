package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/steward/pkg/config"
	"github.com/jllopis/steward/pkg/llm"
	"github.com/jllopis/steward/pkg/llm/anthropic"
	"github.com/jllopis/steward/pkg/llm/gemini"
	"github.com/jllopis/steward/pkg/memory"
	"github.com/jllopis/steward/pkg/memory/ollama"
	"github.com/jllopis/steward/pkg/memory/qdrant"
)

// buildProvider returns the backend named by llm.provider. base_url only
// applies to ollama and anthropic.
func buildProvider(ctx context.Context, cfg config.LLMConfig) (llm.Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		return llm.NewOllama(cfg.BaseURL), nil
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
		if cfg.MaxTokens > 0 {
			opts = append(opts, anthropic.WithMaxTokens(int64(cfg.MaxTokens)))
		}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" && !strings.Contains(cfg.BaseURL, ":11434") {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...), nil
	case "gemini":
		p, err := gemini.New(ctx, cfg.APIKey, gemini.WithModel(cfg.Model))
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, NewInvalidArgumentError("llm.provider", fmt.Sprintf("unknown provider %q (want ollama, anthropic or gemini)", cfg.Provider))
	}
}

// buildMemory returns the knowledge store for the memory injector, or nil
// when memory.provider is "none".
func (a *app) buildMemory(ctx context.Context) (memory.Store, error) {
	cfg := a.cfg.Memory
	switch strings.ToLower(cfg.Provider) {
	case "", "dir":
		return memory.NewDirStore(cfg.Dir), nil
	case "none":
		return nil, nil
	case "qdrant":
		store, err := qdrant.New(cfg.QdrantAddr)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant at %s: %w", cfg.QdrantAddr, err)
		}
		a.closers = append(a.closers, store.Close)
		vm := memory.NewVectorMemory(store, ollama.NewEmbedder(cfg.EmbedderBaseURL, cfg.EmbedderModel), cfg.Collection,
			memory.WithSearchLimit(cfg.SearchLimit))
		if err := vm.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("initialize qdrant collection %s: %w", cfg.Collection, err)
		}
		return vm, nil
	default:
		return nil, NewInvalidArgumentError("memory.provider", fmt.Sprintf("unknown provider %q (want dir, qdrant or none)", cfg.Provider))
	}
}
