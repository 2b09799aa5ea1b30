package vector

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/models"
)

// Payload keys reserved by QdrantStore; every other payload key is document metadata.
const (
	payloadText  = "text"
	payloadDocID = "doc_id"
)

// pointNamespace derives point UUIDs from document IDs.
var pointNamespace = uuid.MustParse("0b6c3f1e-5d3a-4f0e-9a57-6d3c1c2e8b41")

// qdrantAPI is the subset of *qdrant.Client used by QdrantStore.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// QdrantConfig holds connection settings for QdrantStore.
type QdrantConfig struct {
	// URL of the gRPC endpoint, e.g. http://localhost:6334. https enables TLS.
	URL        string
	APIKey     string
	Collection string
}

// QdrantStore is a Store backed by a Qdrant collection using cosine distance.
// The point payload holds the document text, its ID and its metadata keys.
type QdrantStore struct {
	client     qdrantAPI
	embedder   embedding.Embedder
	collection string
	logger     *zap.Logger

	mu    sync.Mutex
	ready bool
}

// NewQdrantStore connects to Qdrant. The collection is created on first use.
func NewQdrantStore(cfg QdrantConfig, embedder embedding.Embedder, opts ...Option) (*QdrantStore, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return newQdrantStore(client, cfg.Collection, embedder, opts...), nil
}

func newQdrantStore(client qdrantAPI, collection string, embedder embedding.Embedder, opts ...Option) *QdrantStore {
	o := buildOptions(opts)
	if collection == "" {
		collection = "documents"
	}
	return &QdrantStore{client: client, embedder: embedder, collection: collection, logger: o.logger}
}

func parseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	if raw == "" {
		return "localhost", 6334, false, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant url: %w", err)
	}
	if u.Host == "" {
		return "", 0, false, fmt.Errorf("invalid qdrant url %q: missing host", raw)
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()
	port = 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", p, err)
		}
	}
	return host, port, useTLS, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check qdrant collection: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.embedder.Dimensions()),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create qdrant collection: %w", err)
		}
		s.logger.Info("qdrant collection created", zap.String("collection", s.collection))
	}
	s.ready = true
	return nil
}

// PointID returns the Qdrant point UUID for a document ID.
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

// Upsert embeds and stores documents.
func (s *QdrantStore) Upsert(ctx context.Context, docs ...*models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		payload, err := qdrant.TryValueMap(buildPayload(d))
		if err != nil {
			return fmt.Errorf("unsupported metadata for %s: %w", d.ID, err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(d.ID)),
			Vectors: qdrant.NewVectors(vecs[i]...),
			Payload: payload,
		}
	}
	wait := true
	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func buildPayload(d *models.Document) map[string]any {
	payload := make(map[string]any, len(d.Metadata)+2)
	for k, v := range d.Metadata {
		payload[k] = payloadValue(v)
	}
	payload[payloadText] = d.Text
	payload[payloadDocID] = d.ID
	return payload
}

// payloadValue stores whole-number floats as integers. JSON metadata decodes every number
// as float64, and an integer match condition never matches a double payload.
func payloadValue(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if n, ok := wholeNumber(x); ok {
			return n
		}
	case float32:
		if n, ok := wholeNumber(float64(x)); ok {
			return n
		}
	}
	return v
}

func wholeNumber(x float64) (int64, bool) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) || math.Abs(x) >= 1<<63 {
		return 0, false
	}
	return int64(x), true
}

// Search embeds query and returns the topK nearest points matching filter.
func (s *QdrantStore) Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if f := buildFilter(filter); f != nil {
		req.Filter = f
	}
	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	hits := make([]*models.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, pointToHit(p))
	}
	return hits, nil
}

// buildFilter turns equality filters into must-match conditions.
func buildFilter(filter map[string]interface{}) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		switch x := v.(type) {
		case bool:
			must = append(must, qdrant.NewMatchBool(k, x))
		case int:
			must = append(must, qdrant.NewMatchInt(k, int64(x)))
		case int64:
			must = append(must, qdrant.NewMatchInt(k, x))
		case float64:
			if n, ok := wholeNumber(x); ok {
				must = append(must, qdrant.NewMatchInt(k, n))
			} else {
				must = append(must, qdrant.NewRange(k, &qdrant.Range{Gte: &x, Lte: &x}))
			}
		default:
			must = append(must, qdrant.NewMatch(k, models.FilterValue(v)))
		}
	}
	return &qdrant.Filter{Must: must}
}

func pointToHit(p *qdrant.ScoredPoint) *models.Hit {
	hit := &models.Hit{Score: float64(p.GetScore())}
	meta := make(map[string]interface{}, len(p.GetPayload()))
	for k, v := range p.GetPayload() {
		switch k {
		case payloadText:
			hit.Document = v.GetStringValue()
		case payloadDocID:
			hit.ID = v.GetStringValue()
		default:
			meta[k] = valueToInterface(v)
		}
	}
	if hit.ID == "" && p.GetId() != nil {
		if u := p.GetId().GetUuid(); u != "" {
			hit.ID = u
		} else {
			hit.ID = strconv.FormatUint(p.GetId().GetNum(), 10)
		}
	}
	if len(meta) > 0 {
		hit.Metadata = meta
	}
	return hit
}

func valueToInterface(v *qdrant.Value) interface{} {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]interface{}, len(k.StructValue.GetFields()))
		for name, f := range k.StructValue.GetFields() {
			out[name] = valueToInterface(f)
		}
		return out
	case *qdrant.Value_ListValue:
		vals := k.ListValue.GetValues()
		out := make([]interface{}, len(vals))
		for i, item := range vals {
			out[i] = valueToInterface(item)
		}
		return out
	default:
		return nil
	}
}

// Delete removes documents by ID.
func (s *QdrantStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(PointID(id))
	}
	wait := true
	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	}); err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

// Size returns the exact number of points in the collection.
func (s *QdrantStore) Size(ctx context.Context) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
