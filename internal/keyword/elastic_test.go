package keyword

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kensaku/internal/models"
)

// fakeElastic serves the small subset of the Elasticsearch API the index uses.
type fakeElastic struct {
	mu       sync.Mutex
	exists   bool
	creates  int
	indexed  map[string]map[string]interface{}
	refresh  []string
	lastBody map[string]interface{}
	lastSize string
}

func newFakeElastic(t *testing.T) (*fakeElastic, *ElasticIndex) {
	t.Helper()
	f := &fakeElastic{indexed: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	idx, err := NewElasticIndex(ElasticConfig{URL: srv.URL, Index: "documents"}, nil)
	if err != nil {
		t.Fatalf("NewElasticIndex: %v", err)
	}
	return f, idx
}

func (f *fakeElastic) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	var body map[string]interface{}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}
	path := strings.TrimPrefix(r.URL.Path, "/documents")
	switch {
	case r.Method == http.MethodHead && path == "":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && path == "":
		f.exists = true
		f.creates++
		f.lastBody = body
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	case strings.HasPrefix(path, "/_doc/") && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		id := strings.TrimPrefix(path, "/_doc/")
		f.indexed[id] = body
		f.refresh = append(f.refresh, r.URL.Query().Get("refresh"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"` + id + `","result":"created"}`))
	case strings.HasPrefix(path, "/_doc/") && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(path, "/_doc/")
		if _, ok := f.indexed[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"result":"not_found"}`))
			return
		}
		delete(f.indexed, id)
		_, _ = w.Write([]byte(`{"result":"deleted"}`))
	case path == "/_search":
		f.lastBody = body
		f.lastSize = r.URL.Query().Get("size")
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"a","_score":2.5,"_source":{"text":"alpha doc","metadata":{"type":"material"}}},
			{"_id":"b","_score":1.25,"_source":{"text":"beta doc","metadata":{}}}
		]}}`))
	case path == "/_count":
		_, _ = w.Write([]byte(`{"count":` + strconv.Itoa(len(f.indexed)) + `}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unexpected ` + r.Method + " " + r.URL.Path + `"}`))
	}
}

func TestElasticIndex_CreatesIndexOnce(t *testing.T) {
	f, idx := newFakeElastic(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := idx.Index(ctx, &models.Document{ID: id, Text: "text " + id}); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}
	if f.creates != 1 {
		t.Errorf("index created %d times, want 1", f.creates)
	}
	mappings, _ := f.lastBody["mappings"].(map[string]interface{})
	props, _ := mappings["properties"].(map[string]interface{})
	if _, ok := props["text"]; !ok {
		t.Errorf("create body missing text mapping: %v", f.lastBody)
	}
	if _, ok := props["metadata"]; !ok {
		t.Errorf("create body missing metadata mapping: %v", f.lastBody)
	}
}

func TestElasticIndex_Index(t *testing.T) {
	f, idx := newFakeElastic(t)
	doc := &models.Document{ID: "d1", Text: "hello", Metadata: map[string]interface{}{"type": "question"}}
	if err := idx.Index(context.Background(), doc); err != nil {
		t.Fatalf("Index: %v", err)
	}
	got := f.indexed["d1"]
	if got["text"] != "hello" {
		t.Errorf("text = %v, want hello", got["text"])
	}
	meta, _ := got["metadata"].(map[string]interface{})
	if meta["type"] != "question" {
		t.Errorf("metadata = %v", got["metadata"])
	}
	if len(f.refresh) != 1 || f.refresh[0] != "true" {
		t.Errorf("refresh = %v, want [true]", f.refresh)
	}

	// nil metadata is sent as an empty object
	if err := idx.Index(context.Background(), &models.Document{ID: "d2", Text: "x"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if m, ok := f.indexed["d2"]["metadata"].(map[string]interface{}); !ok || len(m) != 0 {
		t.Errorf("metadata for nil = %#v, want {}", f.indexed["d2"]["metadata"])
	}
}

func TestElasticIndex_Search(t *testing.T) {
	f, idx := newFakeElastic(t)
	hits, err := idx.Search(context.Background(), "alpha", 5, map[string]interface{}{"type": "material"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != "a" || hits[0].Score != 2.5 || hits[0].Document != "alpha doc" {
		t.Errorf("hit[0] = %+v", hits[0])
	}
	if hits[0].Metadata["type"] != "material" {
		t.Errorf("hit[0] metadata = %v", hits[0].Metadata)
	}
	if hits[1].Metadata != nil {
		t.Errorf("empty metadata should be nil, got %v", hits[1].Metadata)
	}
	if f.lastSize != "5" {
		t.Errorf("size = %q, want 5", f.lastSize)
	}

	q, _ := f.lastBody["query"].(map[string]interface{})
	b, _ := q["bool"].(map[string]interface{})
	must, _ := b["must"].([]interface{})
	if len(must) != 2 {
		t.Fatalf("must = %v, want match + term", must)
	}
	match, _ := must[0].(map[string]interface{})["match"].(map[string]interface{})
	if match["text"] != "alpha" {
		t.Errorf("match clause = %v", must[0])
	}
	term, _ := must[1].(map[string]interface{})["term"].(map[string]interface{})
	if term["metadata.type"] != "material" {
		t.Errorf("term clause = %v", must[1])
	}
}

func TestElasticIndex_SearchZeroTopK(t *testing.T) {
	_, idx := newFakeElastic(t)
	hits, err := idx.Search(context.Background(), "alpha", 0, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits, want 0", len(hits))
	}
}

func TestElasticIndex_DeleteAndCount(t *testing.T) {
	_, idx := newFakeElastic(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := idx.Index(ctx, &models.Document{ID: id, Text: id}); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}
	if err := idx.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := idx.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing should not fail: %v", err)
	}
	n, err := idx.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
}

func TestElasticIndex_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	idx, err := NewElasticIndex(ElasticConfig{URL: srv.URL, Index: "documents"}, nil)
	if err != nil {
		t.Fatalf("NewElasticIndex: %v", err)
	}
	if _, err := idx.Search(context.Background(), "q", 3, nil); err == nil {
		t.Error("expected error when index check is forbidden")
	}
}

func TestNewElasticIndex_RequiresIndex(t *testing.T) {
	if _, err := NewElasticIndex(ElasticConfig{URL: "http://localhost:9200"}, nil); err == nil {
		t.Error("expected error for empty index name")
	}
}
