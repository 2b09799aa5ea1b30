// Package server provides the HTTP API for kensaku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// Searcher runs a hybrid search. search.Retriever implements it.
type Searcher interface {
	Search(ctx context.Context, req *models.SearchRequest) ([]*models.FusedResult, error)
}

// Ingester writes and removes documents. ingest.Ingester implements it.
type Ingester interface {
	IngestDocument(ctx context.Context, input *models.DocumentInput) (string, error)
	IngestBatch(ctx context.Context, texts []string, metadataList []map[string]interface{}) ([]string, error)
	DeleteDocument(ctx context.Context, id string) error
}

// LexicalCounter reports the lexical index size.
type LexicalCounter interface {
	DocCount() (uint64, error)
}

// SemanticSizer reports the semantic store size.
type SemanticSizer interface {
	Size(ctx context.Context) (int, error)
}

// Deps are the services behind the API. Lexical and Semantic are optional and only
// feed the status endpoint.
type Deps struct {
	Searcher Searcher
	Ingester Ingester
	Storage  storage.Storage
	Lexical  LexicalCounter
	Semantic SemanticSizer
}

// Server is the HTTP server for the kensaku API.
type Server struct {
	deps   Deps
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{deps: deps, config: cfg, logger: logger}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/search", func(r chi.Router) {
			r.Post("/hybrid", s.handleSearch)
			r.Post("/questions", s.handleTypedSearch(s.config.Search.QuestionType))
			r.Post("/materials", s.handleTypedSearch(s.config.Search.MaterialType))
		})
		r.Post("/ingest", s.handleIngest)
		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleIndexDocument)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Get("/status", s.handleStatus)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
