package vector

import (
	"fmt"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
)

// NewStore creates the semantic store selected by cfg.Semantic.Provider:
// "memory" (default) persists to cfg.Storage.VectorIndexPath, "qdrant" uses cfg.Semantic.Qdrant.
func NewStore(cfg *config.Config, embedder embedding.Embedder, opts ...Option) (Store, error) {
	switch cfg.Semantic.Provider {
	case config.SemanticMemory, "":
		s, err := NewLocalStore(embedder, cfg.Storage.VectorIndexPath, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SemanticQdrant:
		q := cfg.Semantic.Qdrant
		s, err := NewQdrantStore(QdrantConfig{URL: q.URL, APIKey: q.APIKey, Collection: q.Collection}, embedder, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown semantic provider: %s (supported: memory, qdrant)", cfg.Semantic.Provider)
	}
}
