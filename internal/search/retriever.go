package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kensaku/internal/cache"
	"github.com/hyperjump/kensaku/internal/models"
)

// ErrInvalidAlpha is returned when the blend weight is outside [0,1].
var ErrInvalidAlpha = models.ErrInvalidAlpha

// DefaultCachePrefix namespaces cached hybrid search results.
const DefaultCachePrefix = "search:hybrid"

// Backend is a single retrieval backend. Lexical and semantic backends share this shape;
// both receive the same query, topK and filter. Filter semantics belong to the backend.
type Backend interface {
	Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.Hit, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.Hit, error)

// Search calls f.
func (f BackendFunc) Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.Hit, error) {
	return f(ctx, query, topK, filter)
}

// Retriever queries a lexical and a semantic backend concurrently and fuses their results.
// It holds no per-call state and is safe for concurrent use.
type Retriever struct {
	lexical     Backend
	semantic    Backend
	alpha       float64
	cache       cache.Cache
	cacheTTL    time.Duration
	cachePrefix string
	logger      *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithAlpha sets the default semantic weight (0.5 when not set).
func WithAlpha(alpha float64) Option {
	return func(r *Retriever) {
		r.alpha = alpha
	}
}

// WithCache enables result caching. A nil cache disables it.
func WithCache(c cache.Cache, prefix string, ttl time.Duration) Option {
	return func(r *Retriever) {
		r.cache = c
		r.cacheTTL = ttl
		if prefix != "" {
			r.cachePrefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetriever creates a Retriever over the two backends.
func NewRetriever(lexical, semantic Backend, opts ...Option) (*Retriever, error) {
	if lexical == nil || semantic == nil {
		return nil, errors.New("both lexical and semantic backends are required")
	}
	r := &Retriever{
		lexical:     lexical,
		semantic:    semantic,
		alpha:       0.5,
		cachePrefix: DefaultCachePrefix,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := models.ValidateAlpha(r.alpha); err != nil {
		return nil, err
	}
	return r, nil
}

// Alpha returns the default semantic weight.
func (r *Retriever) Alpha() float64 {
	return r.alpha
}

// Search runs req against both backends and returns at most TopK fused results, best first.
// req.Alpha overrides the default weight for this call. A failure in either backend fails
// the whole call; cache failures are logged and otherwise ignored.
func (r *Retriever) Search(ctx context.Context, req *models.SearchRequest) ([]*models.FusedResult, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	alpha := r.alpha
	if req.Alpha != nil {
		if err := models.ValidateAlpha(*req.Alpha); err != nil {
			return nil, err
		}
		alpha = *req.Alpha
	}

	key := r.cacheKey(req.Query, topK, alpha, req.Filter)
	if cached, ok := r.lookup(ctx, key); ok {
		return cached, nil
	}

	var lexicalHits, semanticHits []*models.Hit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.lexical.Search(gctx, req.Query, topK, req.Filter)
		if err != nil {
			return fmt.Errorf("lexical search failed: %w", err)
		}
		lexicalHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := r.semantic.Search(gctx, req.Query, topK, req.Filter)
		if err != nil {
			return fmt.Errorf("semantic search failed: %w", err)
		}
		semanticHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("backend results",
		zap.String("query", req.Query),
		zap.Int("lexical", len(lexicalHits)),
		zap.Int("semantic", len(semanticHits)))

	results := Fuse(lexicalHits, semanticHits, alpha, topK)
	r.store(ctx, key, results)
	return results, nil
}

func (r *Retriever) cacheKey(query string, topK int, alpha float64, filter map[string]interface{}) string {
	if r.cache == nil {
		return ""
	}
	f := filter
	if f == nil {
		f = map[string]interface{}{}
	}
	key, err := cache.MakeKey(r.cachePrefix, map[string]interface{}{"q": query, "k": topK, "a": alpha, "f": f})
	if err != nil {
		r.logger.Warn("cache key unavailable", zap.Error(err))
		return ""
	}
	return key
}

func (r *Retriever) lookup(ctx context.Context, key string) ([]*models.FusedResult, bool) {
	if key == "" {
		return nil, false
	}
	data, found, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		r.logger.Debug("cache miss", zap.String("key", key))
		return nil, false
	}
	var results []*models.FusedResult
	if err := json.Unmarshal(data, &results); err != nil {
		r.logger.Warn("cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	r.logger.Debug("cache hit", zap.String("key", key), zap.Int("results", len(results)))
	return results, true
}

func (r *Retriever) store(ctx context.Context, key string, results []*models.FusedResult) {
	if key == "" {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		r.logger.Warn("cache encode failed", zap.Error(err))
		return
	}
	if err := r.cache.Set(ctx, key, data, r.cacheTTL); err != nil {
		r.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
