package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "all-minilm" {
			http.Error(w, "wrong model", http.StatusBadRequest)
			return
		}
		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1, 0})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL + "/", Model: "all-minilm", Dimensions: 3})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	v, err := e.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 3 || v[1] != 1 {
		t.Errorf("unexpected vector %v", v)
	}

	batch, err := e.EmbedBatch(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 || batch[2][0] != 2 {
		t.Errorf("unexpected batch %v", batch)
	}

	empty, err := e.EmbedBatch(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty batch: %v %v", empty, err)
	}
}

func TestOllamaEmbedder_errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{"))
		}},
		{"count mismatch", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings":[]}`))
		}},
		{"dimension mismatch", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings":[[1,2]]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			e, _ := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, Dimensions: 3})
			_, err := e.Embed(context.Background(), "x")
			if !errors.Is(err, ErrEmbedding) {
				t.Errorf("expected ErrEmbedding, got %v", err)
			}
		})
	}
}

func TestNewOllamaEmbedder_requiresDimensions(t *testing.T) {
	if _, err := NewOllamaEmbedder(OllamaConfig{}); err == nil {
		t.Error("expected error without dimensions")
	}
}
