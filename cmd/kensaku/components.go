package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/cache"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/extract"
	"github.com/hyperjump/kensaku/internal/ingest"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Embedder  embedding.Embedder
	Lexical   keyword.Index
	Semantic  vector.Store
	Cache     cache.Cache
	Retriever *search.Retriever
	Ingester  *ingest.Ingester
}

// Close releases every component. The semantic store is closed before the embedder it uses.
func (c *Components) Close() {
	if c.Semantic != nil {
		_ = c.Semantic.Close()
	}
	if c.Lexical != nil {
		_ = c.Lexical.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	fail := func(err error) (*Components, error) {
		c.Close()
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize storage: %w", err))
	}
	c.Storage = store

	embedder, err := embedding.NewEmbedder(&cfg.Embedding)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize embedder: %w", err))
	}
	c.Embedder = embedder

	lexical, err := keyword.NewIndex(cfg, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize lexical index: %w", err))
	}
	c.Lexical = lexical

	semantic, err := vector.NewStore(cfg, embedder, vector.WithLogger(logger))
	if err != nil {
		return fail(fmt.Errorf("failed to initialize semantic store: %w", err))
	}
	c.Semantic = semantic

	resultCache, err := cache.New(&cfg.Cache)
	if err != nil {
		logger.Warn("result cache disabled", zap.String("provider", cfg.Cache.Provider), zap.Error(err))
		resultCache = nil
	}
	c.Cache = resultCache

	retriever, err := search.NewRetriever(lexical, semantic,
		search.WithAlpha(cfg.Search.Alpha()),
		search.WithCache(resultCache, cfg.Cache.Prefix, cache.TTL(&cfg.Cache)),
		search.WithLogger(logger),
	)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize retriever: %w", err))
	}
	c.Retriever = retriever

	c.Ingester = ingest.New(store, lexical, semantic,
		ingest.WithLogger(logger),
		ingest.WithExtractor(extract.NewExtractor()),
	)

	logger.Info("components initialized",
		zap.String("lexical", cfg.Lexical.Provider),
		zap.String("semantic", cfg.Semantic.Provider),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.Int("dimensions", embedder.Dimensions()),
		zap.Bool("cache", resultCache != nil),
	)
	return c, nil
}
