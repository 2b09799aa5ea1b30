// Package embedding turns text into vectors for the semantic backend.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kensaku/internal/config"
)

// ErrEmbedding is wrapped by errors from remote embedding providers.
var ErrEmbedding = errors.New("embedding failed")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// NewEmbedder builds the embedder selected by cfg, wrapped in an LRU cache when
// cfg.CacheSize is positive.
func NewEmbedder(cfg *config.EmbeddingConfig) (Embedder, error) {
	var (
		base Embedder
		err  error
	)
	switch cfg.Provider {
	case config.EmbeddingHash, "":
		base = NewHashingEmbedder(cfg.Dimensions)
	case config.EmbeddingOllama:
		base, err = NewOllamaEmbedder(OllamaConfig{
			BaseURL:    cfg.Ollama.URL,
			Model:      cfg.Ollama.Model,
			Dimensions: cfg.Dimensions,
		})
	case config.EmbeddingONNX:
		var onnx *ONNXEmbedder
		onnx, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err == nil {
			base = onnx
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(base, cfg.CacheSize)
	}
	return base, nil
}

// embedEach calls embed for every text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
