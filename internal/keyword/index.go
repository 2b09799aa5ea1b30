// Package keyword provides the lexical (BM25) search backends: a local Bleve index and Elasticsearch.
package keyword

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
)

// Index is a lexical index. Search satisfies search.Backend and returns raw BM25 scores.
type Index interface {
	Index(ctx context.Context, doc *models.Document) error
	Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.Hit, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// NewIndex opens the lexical index selected by cfg.Lexical.Provider.
func NewIndex(cfg *config.Config, logger *zap.Logger) (Index, error) {
	switch cfg.Lexical.Provider {
	case config.LexicalBleve, "":
		idx, err := NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case config.LexicalElasticsearch:
		es := cfg.Lexical.Elasticsearch
		idx, err := NewElasticIndex(ElasticConfig{URL: es.URL, APIKey: es.APIKey, Index: es.Index}, logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown lexical provider: %s (supported: bleve, elasticsearch)", cfg.Lexical.Provider)
	}
}
