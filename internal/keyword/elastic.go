package keyword

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/models"
)

// ElasticConfig holds Elasticsearch connection settings.
type ElasticConfig struct {
	URL    string
	APIKey string
	Index  string
}

// Metadata strings map to keyword fields so term filters compare exact values.
const elasticIndexBody = `{
  "settings": {"analysis": {"analyzer": {"default": {"type": "standard"}}}},
  "mappings": {
    "dynamic_templates": [
      {"metadata_strings": {"path_match": "metadata.*", "match_mapping_type": "string", "mapping": {"type": "keyword"}}}
    ],
    "properties": {
      "text": {"type": "text"},
      "metadata": {"type": "object", "enabled": true}
    }
  }
}`

// ElasticIndex implements Index on an Elasticsearch index. The index is created on first use.
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
	logger *zap.Logger

	mu    sync.Mutex
	ready bool
}

type elasticSource struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

type elasticSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string        `json:"_id"`
			Score  float64       `json:"_score"`
			Source elasticSource `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// NewElasticIndex creates a client for cfg. No request is made until first use.
func NewElasticIndex(cfg ElasticConfig, logger *zap.Logger) (*ElasticIndex, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("elasticsearch index name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticIndex{client: client, index: cfg.Index, logger: logger}, nil
}

func (e *ElasticIndex) ensureIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}
	res, err := e.client.Indices.Exists([]string{e.index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", e.index, err)
	}
	closeBody(res)
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		res, err = e.client.Indices.Create(e.index,
			e.client.Indices.Create.WithBody(bytes.NewReader([]byte(elasticIndexBody))),
			e.client.Indices.Create.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", e.index, err)
		}
		defer closeBody(res)
		if res.IsError() {
			return fmt.Errorf("failed to create index %s: %s", e.index, res.Status())
		}
		e.logger.Info("created elasticsearch index", zap.String("index", e.index))
	default:
		return fmt.Errorf("failed to check index %s: %s", e.index, res.Status())
	}
	e.ready = true
	return nil
}

// Index stores doc under its ID with refresh so it is searchable immediately.
func (e *ElasticIndex) Index(ctx context.Context, doc *models.Document) error {
	if err := e.ensureIndex(ctx); err != nil {
		return err
	}
	meta := doc.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	body, err := json.Marshal(elasticSource{Text: doc.Text, Metadata: meta})
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	res, err := e.client.Index(e.index, bytes.NewReader(body),
		e.client.Index.WithDocumentID(doc.ID),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	defer closeBody(res)
	if res.IsError() {
		return fmt.Errorf("failed to index document %s: %s", doc.ID, res.Status())
	}
	return nil
}

// Search runs a bool query: match on text plus a term on metadata.<key> per filter entry.
func (e *ElasticIndex) Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.Hit, error) {
	if topK <= 0 {
		return []*models.Hit{}, nil
	}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}
	must := []map[string]interface{}{
		{"match": map[string]interface{}{"text": query}},
	}
	for k, v := range filter {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"metadata." + k: v},
		})
	}
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"bool": map[string]interface{}{"must": must}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
		e.client.Search.WithSize(topK),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search failed: %s", res.Status())
	}

	var parsed elasticSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	hits := make([]*models.Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hit := &models.Hit{ID: h.ID, Document: h.Source.Text, Score: h.Score}
		if len(h.Source.Metadata) > 0 {
			hit.Metadata = h.Source.Metadata
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Delete removes a document. A missing document is not an error.
func (e *ElasticIndex) Delete(ctx context.Context, id string) error {
	if err := e.ensureIndex(ctx); err != nil {
		return err
	}
	res, err := e.client.Delete(e.index, id,
		e.client.Delete.WithRefresh("true"),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	defer closeBody(res)
	if res.StatusCode == http.StatusNotFound {
		e.logger.Debug("delete: document not in index", zap.String("id", id))
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("failed to delete document %s: %s", id, res.Status())
	}
	return nil
}

// DocCount returns the number of documents in the index.
func (e *ElasticIndex) DocCount() (uint64, error) {
	ctx := context.Background()
	if err := e.ensureIndex(ctx); err != nil {
		return 0, err
	}
	res, err := e.client.Count(
		e.client.Count.WithIndex(e.index),
		e.client.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count failed: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch count failed: %s", res.Status())
	}
	var parsed struct {
		Count uint64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return parsed.Count, nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *ElasticIndex) Close() error {
	return nil
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}
