package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
search:
  default_alpha: 0.7
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Search.Alpha() != 0.7 {
		t.Errorf("default_alpha = %v, want 0.7", cfg.Search.Alpha())
	}
}

func TestLoad_alphaZeroIsKept(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("search:\n  default_alpha: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.Alpha() != 0 {
		t.Errorf("explicit alpha 0 should survive defaults, got %v", cfg.Search.Alpha())
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"alpha too large", "search:\n  default_alpha: 1.5\n", "default_alpha"},
		{"unknown lexical provider", "lexical:\n  provider: solr\n", "lexical.provider"},
		{"unknown semantic provider", "semantic:\n  provider: pinecone\n", "semantic.provider"},
		{"unknown cache provider", "cache:\n  provider: memcached\n", "cache.provider"},
		{"default above max", "search:\n  default_top_k: 50\n  max_top_k: 20\n", "exceeds"},
		{"bad yaml", "server: [\n", "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/documents.db"
  vector_index_path: "./data/indices/vectors.bin"
watch:
  directories: ["./dev/sample"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "documents.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantVec := filepath.Join(dir, "data", "indices", "vectors.bin")
	if cfg.Storage.VectorIndexPath != wantVec {
		t.Errorf("vector_index_path = %s, want %s", cfg.Storage.VectorIndexPath, wantVec)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "dev", "sample")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Search.DefaultTopK != 10 || cfg.Search.MaxTopK != 100 {
		t.Errorf("top_k defaults: got %d/%d", cfg.Search.DefaultTopK, cfg.Search.MaxTopK)
	}
	if cfg.Search.Alpha() != 0.5 {
		t.Errorf("default alpha: got %v", cfg.Search.Alpha())
	}
	if cfg.Lexical.Provider != LexicalBleve || cfg.Semantic.Provider != SemanticMemory {
		t.Errorf("providers: lexical=%s semantic=%s", cfg.Lexical.Provider, cfg.Semantic.Provider)
	}
	if cfg.Embedding.Provider != EmbeddingHash || cfg.Embedding.Dimensions != 384 {
		t.Errorf("embedding: %+v", cfg.Embedding)
	}
	if !cfg.Cache.EnabledOrDefault() || cfg.Cache.Provider != CacheMemory || cfg.Cache.TTLSeconds != 600 {
		t.Errorf("cache: %+v", cfg.Cache)
	}
	if cfg.Cache.Prefix != "search:hybrid" {
		t.Errorf("cache prefix: got %s", cfg.Cache.Prefix)
	}
	if len(cfg.Watch.Extensions) != 11 || cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{}
	err := ApplyEnv(cfg, envMap(map[string]string{
		"REDIS_URL":               "redis://cache:6379/2",
		"REDIS_DB":                "3",
		"REDIS_TLS":               "yes",
		"REDIS_CACHE_ENABLED":     "false",
		"REDIS_CACHE_TTL_SECONDS": "120",
		"ELASTIC_URL":             "http://es:9200",
		"ELASTIC_INDEX":           "docs",
		"QDRANT_URL":              "http://qdrant:6334",
		"QDRANT_COLLECTION":       "vecs",
		"OLLAMA_URL":              "http://ollama:11434",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Redis.URL != "redis://cache:6379/2" || cfg.Cache.Redis.DB != 3 || !cfg.Cache.Redis.TLS {
		t.Errorf("redis: %+v", cfg.Cache.Redis)
	}
	if cfg.Cache.Provider != CacheRedis {
		t.Errorf("REDIS_URL should select the redis cache, got %q", cfg.Cache.Provider)
	}
	if cfg.Cache.EnabledOrDefault() {
		t.Error("REDIS_CACHE_ENABLED=false should disable the cache")
	}
	if cfg.Cache.TTLSeconds != 120 {
		t.Errorf("ttl: got %d", cfg.Cache.TTLSeconds)
	}
	if cfg.Lexical.Elasticsearch.URL != "http://es:9200" || cfg.Lexical.Elasticsearch.Index != "docs" {
		t.Errorf("elasticsearch: %+v", cfg.Lexical.Elasticsearch)
	}
	if cfg.Semantic.Qdrant.URL != "http://qdrant:6334" || cfg.Semantic.Qdrant.Collection != "vecs" {
		t.Errorf("qdrant: %+v", cfg.Semantic.Qdrant)
	}
	if cfg.Embedding.Ollama.URL != "http://ollama:11434" {
		t.Errorf("ollama: %+v", cfg.Embedding.Ollama)
	}
}

func TestApplyEnv_invalidNumber(t *testing.T) {
	cfg := &Config{}
	err := ApplyEnv(cfg, envMap(map[string]string{"REDIS_PORT": "abc"}))
	if err == nil || !strings.Contains(err.Error(), "REDIS_PORT") {
		t.Errorf("expected REDIS_PORT error, got %v", err)
	}
}

func TestApplyEnv_unsetLeavesValues(t *testing.T) {
	cfg := &Config{Lexical: LexicalConfig{Elasticsearch: ElasticsearchConfig{URL: "http://yaml:9200"}}}
	if err := ApplyEnv(cfg, envMap(nil)); err != nil {
		t.Fatal(err)
	}
	if cfg.Lexical.Elasticsearch.URL != "http://yaml:9200" {
		t.Errorf("yaml value overwritten: %s", cfg.Lexical.Elasticsearch.URL)
	}
	if cfg.Cache.Provider != "" {
		t.Errorf("provider should be untouched, got %q", cfg.Cache.Provider)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
