package keyword

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kensaku/internal/models"
)

const (
	fieldText     = "text"
	fieldMetadata = "metadata_json"
	fieldFilters  = "filters"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// bleveDoc is the indexed form of a document.
type bleveDoc struct {
	Text         string   `json:"text"`
	MetadataJSON string   `json:"metadata_json"`
	Filters      []string `json:"filters"`
}

func newIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) so "bayes" matches "Bayes".
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	docMapping.AddFieldMappingsAt(fieldText, textField)

	metaField := bleve.NewTextFieldMapping()
	metaField.Index = false
	metaField.Store = true
	metaField.IncludeInAll = false
	docMapping.AddFieldMappingsAt(fieldMetadata, metaField)

	filterField := bleve.NewTextFieldMapping()
	filterField.Analyzer = keywordanalyzer.Name
	filterField.Store = false
	filterField.IncludeInAll = false
	docMapping.AddFieldMappingsAt(fieldFilters, filterField)

	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an
// in-memory index. If the mapping changes, remove the index directory to rebuild it.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := newIndexMapping()
	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes a document by its ID, replacing any earlier version.
func (b *BleveIndex) Index(ctx context.Context, doc *models.Document) error {
	meta := []byte("{}")
	if len(doc.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(doc.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	return b.index.Index(doc.ID, bleveDoc{
		Text:         doc.Text,
		MetadataJSON: string(meta),
		Filters:      models.FilterTerms(doc.Metadata),
	})
}

// Search runs a match query on the text field, restricted to documents whose metadata
// equals every filter entry, and returns up to topK hits with raw BM25 scores.
func (b *BleveIndex) Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.Hit, error) {
	if topK <= 0 {
		return []*models.Hit{}, nil
	}
	mq := bleve.NewMatchQuery(query)
	mq.SetField(fieldText)
	var q blevequery.Query = mq
	if len(filter) > 0 {
		conj := []blevequery.Query{mq}
		for k, v := range filter {
			tq := bleve.NewTermQuery(k + "=" + models.FilterValue(v))
			tq.SetField(fieldFilters)
			conj = append(conj, tq)
		}
		q = bleve.NewConjunctionQuery(conj...)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = topK
	req.Fields = []string{fieldText, fieldMetadata}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]*models.Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		hit := &models.Hit{ID: h.ID, Score: h.Score}
		if s, ok := h.Fields[fieldText].(string); ok {
			hit.Document = s
		}
		if s, ok := h.Fields[fieldMetadata].(string); ok && s != "" {
			var meta map[string]interface{}
			if err := json.Unmarshal([]byte(s), &meta); err == nil && len(meta) > 0 {
				hit.Metadata = meta
			}
		}
		out = append(out, hit)
	}
	return out, nil
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
