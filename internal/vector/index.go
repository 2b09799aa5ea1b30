// Package vector provides the semantic search backends: a local brute-force index and Qdrant.
package vector

import (
	"context"

	"github.com/hyperjump/kensaku/internal/models"
)

// Store is a semantic search backend that embeds documents and queries itself.
// Search satisfies search.Backend.
type Store interface {
	Upsert(ctx context.Context, docs ...*models.Document) error
	Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.Hit, error)
	Delete(ctx context.Context, ids ...string) error
	Size(ctx context.Context) (int, error)
	Close() error
}

// Entry is one stored vector with the document text and metadata returned on a match.
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]interface{}
}

// Match is a single vector search hit.
type Match struct {
	Entry *Entry
	Score float64 // inner product; cosine similarity for normalized vectors
}
