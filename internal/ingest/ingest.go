// Package ingest writes documents to the document store and both search backends.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/extract"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

var (
	// ErrEmptyText is returned for a document whose text is empty after normalization.
	ErrEmptyText = errors.New("document text is empty")
	// ErrMetadataMismatch is returned when a batch has more metadata entries than texts.
	ErrMetadataMismatch = errors.New("metadata_list is longer than texts")
)

// Ingester stores documents in storage, the lexical index and the semantic store under
// one id, so both backends return the same merge key for a document.
type Ingester struct {
	storage   storage.Storage
	lexical   keyword.Index
	semantic  vector.Store
	extractor *extract.Extractor
	logger    *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithExtractor sets the text extractor used by IngestFile. Without it every file is read as plain text.
func WithExtractor(e *extract.Extractor) Option {
	return func(in *Ingester) { in.extractor = e }
}

// New creates an Ingester.
func New(st storage.Storage, lexical keyword.Index, semantic vector.Store, opts ...Option) *Ingester {
	in := &Ingester{
		storage:  st,
		lexical:  lexical,
		semantic: semantic,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

func (in *Ingester) prepare(input *models.DocumentInput) (*models.Document, error) {
	text := Preprocess(input.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	return &models.Document{
		ID:        id,
		Text:      text,
		Metadata:  input.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IngestDocument stores one document and returns its id. An existing document with
// the same id is replaced everywhere.
func (in *Ingester) IngestDocument(ctx context.Context, input *models.DocumentInput) (string, error) {
	doc, err := in.prepare(input)
	if err != nil {
		return "", err
	}
	if err := in.write(ctx, []*models.Document{doc}); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// IngestBatch stores texts with the metadata at the same position and returns their ids
// in order. metadataList may be shorter than texts; missing entries mean no metadata.
func (in *Ingester) IngestBatch(ctx context.Context, texts []string, metadataList []map[string]interface{}) ([]string, error) {
	if len(metadataList) > len(texts) {
		return nil, ErrMetadataMismatch
	}
	docs := make([]*models.Document, len(texts))
	for i, text := range texts {
		input := &models.DocumentInput{Text: text}
		if i < len(metadataList) {
			input.Metadata = metadataList[i]
		}
		doc, err := in.prepare(input)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		docs[i] = doc
	}
	if err := in.write(ctx, docs); err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	in.logger.Debug("ingested batch", zap.Int("count", len(ids)))
	return ids, nil
}

// write persists docs to storage first, then the lexical index, then the semantic store
// (embedded in one batch).
func (in *Ingester) write(ctx context.Context, docs []*models.Document) error {
	for _, doc := range docs {
		if err := in.storage.UpsertDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to store document: %w", err)
		}
	}
	for _, doc := range docs {
		if err := in.lexical.Index(ctx, doc); err != nil {
			return fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	if err := in.semantic.Upsert(ctx, docs...); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	return nil
}

// DeleteDocument removes a document from both indices and storage. It returns
// storage.ErrNotFound when the document is not stored.
func (in *Ingester) DeleteDocument(ctx context.Context, id string) error {
	in.logger.Debug("deleting document", zap.String("id", id))
	if err := in.lexical.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from keyword index: %w", err)
	}
	if err := in.semantic.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if err := in.storage.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Rebuild re-indexes every stored document into both backends and returns the count.
func (in *Ingester) Rebuild(ctx context.Context) (int, error) {
	const page = 100
	n := 0
	for offset := 0; ; offset += page {
		docs, err := in.storage.ListDocuments(ctx, offset, page)
		if err != nil {
			return n, fmt.Errorf("failed to list documents: %w", err)
		}
		if len(docs) == 0 {
			return n, nil
		}
		for _, doc := range docs {
			if err := in.lexical.Index(ctx, doc); err != nil {
				return n, fmt.Errorf("failed to index keywords: %w", err)
			}
		}
		if err := in.semantic.Upsert(ctx, docs...); err != nil {
			return n, fmt.Errorf("failed to index vectors: %w", err)
		}
		n += len(docs)
		if len(docs) < page {
			return n, nil
		}
	}
}
