package vector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/models"
)

// Option configures a vector store.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LocalStore is a Store over a MemoryIndex persisted to a single file.
type LocalStore struct {
	embedder embedding.Embedder
	index    *MemoryIndex
	path     string
	logger   *zap.Logger
}

// NewLocalStore creates a store whose vectors have the embedder's dimensions and loads
// any index previously saved at path. An empty path keeps the index in memory only.
func NewLocalStore(embedder embedding.Embedder, path string, opts ...Option) (*LocalStore, error) {
	o := buildOptions(opts)
	idx, err := NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	if err := idx.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}
	o.logger.Debug("vector index loaded", zap.String("path", path), zap.Int("size", idx.Size()))
	return &LocalStore{embedder: embedder, index: idx, path: path, logger: o.logger}, nil
}

// Upsert embeds and stores documents, replacing earlier versions with the same ID.
func (s *LocalStore) Upsert(ctx context.Context, docs ...*models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	entries := make([]*Entry, len(docs))
	for i, d := range docs {
		entries[i] = &Entry{ID: d.ID, Vector: vecs[i], Text: d.Text, Metadata: d.Metadata}
	}
	return s.index.Add(ctx, entries...)
}

// Search embeds query and returns the topK most similar documents matching filter.
func (s *LocalStore) Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.Hit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	matches, err := s.index.Search(ctx, vec, topK, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]*models.Hit, len(matches))
	for i, m := range matches {
		hits[i] = &models.Hit{
			ID:       m.Entry.ID,
			Document: m.Entry.Text,
			Metadata: m.Entry.Metadata,
			Score:    m.Score,
		}
	}
	return hits, nil
}

// Delete removes documents by ID.
func (s *LocalStore) Delete(ctx context.Context, ids ...string) error {
	return s.index.Remove(ctx, ids...)
}

// Size returns the number of stored vectors.
func (s *LocalStore) Size(ctx context.Context) (int, error) {
	return s.index.Size(), nil
}

// Save writes the index to its path.
func (s *LocalStore) Save() error {
	return s.index.Save(s.path)
}

// Close saves the index. The embedder is owned by the caller.
func (s *LocalStore) Close() error {
	if err := s.Save(); err != nil {
		return fmt.Errorf("failed to save vector index: %w", err)
	}
	return s.index.Close()
}
