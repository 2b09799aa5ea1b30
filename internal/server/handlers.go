package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/ingest"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

const (
	maxBodyBytes     = 10 << 20
	defaultListLimit = 20
	maxListLimit     = 100
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, "", "")
}

// handleTypedSearch searches only documents whose metadata "type" equals docType.
func (s *Server) handleTypedSearch(docType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.search(w, r, "type", docType)
	}
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, filterKey, filterValue string) {
	var req models.SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	q := &req
	if filterKey != "" {
		q = req.WithFilter(filterKey, filterValue)
	}
	if err := q.Validate(s.config.Search.DefaultTopK, s.config.Search.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request",
		zap.String("query", q.Query),
		zap.Int("top_k", q.TopK),
		zap.Any("filter", q.Filter))

	results, err := s.deps.Searcher.Search(r.Context(), q)
	if err != nil {
		if errors.Is(err, models.ErrInvalidAlpha) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []*models.FusedResult{}
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{Results: results})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Texts) == 0 {
		s.respondError(w, http.StatusBadRequest, "texts is required")
		return
	}
	ids, err := s.deps.Ingester.IngestBatch(r.Context(), req.Texts, req.MetadataList)
	if err != nil {
		s.respondIngestError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, models.IngestResponse{IDs: ids})
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if !s.decode(w, r, &input) {
		return
	}
	s.logger.Debug("index document request", zap.String("id", input.ID))
	id, err := s.deps.Ingester.IngestDocument(r.Context(), &input)
	if err != nil {
		s.respondIngestError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "indexed"})
}

func (s *Server) respondIngestError(w http.ResponseWriter, err error) {
	if errors.Is(err, ingest.ErrEmptyText) || errors.Is(err, ingest.ErrMetadataMismatch) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("ingest failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	ctx := r.Context()
	docs, err := s.deps.Storage.ListDocuments(ctx, offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.deps.Storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.deps.Storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("get document failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.deps.Ingester.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.deps.Storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{"documents": docCount}
	if s.deps.Lexical != nil {
		if n, err := s.deps.Lexical.DocCount(); err == nil {
			resp["lexical_documents"] = n
		} else {
			s.logger.Warn("status: lexical count failed", zap.Error(err))
		}
	}
	if s.deps.Semantic != nil {
		if n, err := s.deps.Semantic.Size(ctx); err == nil {
			resp["vector_index_size"] = n
		} else {
			s.logger.Warn("status: semantic size failed", zap.Error(err))
		}
	}

	cfg := s.config
	resp["config"] = map[string]interface{}{
		"lexical_provider":     cfg.Lexical.Provider,
		"semantic_provider":    cfg.Semantic.Provider,
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"default_alpha":        cfg.Search.Alpha(),
		"default_top_k":        cfg.Search.DefaultTopK,
		"cache_enabled":        cfg.Cache.EnabledOrDefault(),
		"database_path":        cfg.Storage.DatabasePath,
	}
	if diskBytes, err := storage.DiskUsageBytes(localPaths(cfg)...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// localPaths returns the on-disk paths used by the configured providers.
func localPaths(cfg *config.Config) []string {
	paths := []string{cfg.Storage.DatabasePath}
	if cfg.Lexical.Provider == config.LexicalBleve || cfg.Lexical.Provider == "" {
		paths = append(paths, cfg.Storage.BleveIndexPath)
	}
	if cfg.Semantic.Provider == config.SemanticMemory || cfg.Semantic.Provider == "" {
		paths = append(paths, cfg.Storage.VectorIndexPath)
	}
	return paths
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
