// Package config provides configuration loading and structs for the kensaku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider names accepted by the lexical, semantic, embedding and cache sections.
const (
	LexicalBleve         = "bleve"
	LexicalElasticsearch = "elasticsearch"

	SemanticMemory = "memory"
	SemanticQdrant = "qdrant"

	EmbeddingHash   = "hash"
	EmbeddingONNX   = "onnx"
	EmbeddingOllama = "ollama"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
	Lexical   LexicalConfig   `yaml:"lexical"`
	Semantic  SemanticConfig  `yaml:"semantic"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the document database and local indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// SearchConfig holds hybrid search defaults.
type SearchConfig struct {
	DefaultTopK  int      `yaml:"default_top_k"`
	MaxTopK      int      `yaml:"max_top_k"`
	DefaultAlpha *float64 `yaml:"default_alpha"`
	QuestionType string   `yaml:"question_type"`
	MaterialType string   `yaml:"material_type"`
}

// Alpha returns the configured default alpha, or 0.5 when unset.
func (s *SearchConfig) Alpha() float64 {
	if s.DefaultAlpha != nil {
		return *s.DefaultAlpha
	}
	return 0.5
}

// LexicalConfig selects the BM25 backend.
type LexicalConfig struct {
	Provider      string              `yaml:"provider"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
}

// ElasticsearchConfig holds Elasticsearch connection settings.
type ElasticsearchConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// SemanticConfig selects the vector backend.
type SemanticConfig struct {
	Provider string       `yaml:"provider"`
	Qdrant   QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider   string       `yaml:"provider"`
	ModelPath  string       `yaml:"model_path"`
	Dimensions int          `yaml:"dimensions"`
	MaxTokens  int          `yaml:"max_tokens"`
	CacheSize  int          `yaml:"cache_size"`
	Ollama     OllamaConfig `yaml:"ollama"`
}

// OllamaConfig holds settings for the Ollama embedding API.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Enabled    *bool       `yaml:"enabled"`
	Provider   string      `yaml:"provider"`
	TTLSeconds int         `yaml:"ttl_seconds"`
	Size       int         `yaml:"size"`
	Prefix     string      `yaml:"prefix"`
	Redis      RedisConfig `yaml:"redis"`
}

// EnabledOrDefault returns whether the result cache is enabled; defaults to true when unset.
func (c *CacheConfig) EnabledOrDefault() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return true
}

// RedisConfig holds Redis connection settings. URL takes precedence over Host/Port.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

// Load reads and parses the config file at path, applies environment overrides,
// expands paths, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration built only from defaults and the environment.
func Default() (*Config, error) {
	var cfg Config
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports unknown providers and out-of-range search settings.
func (c *Config) Validate() error {
	if a := c.Search.Alpha(); !(a >= 0 && a <= 1) {
		return fmt.Errorf("invalid search.default_alpha %v: must be between 0 and 1", a)
	}
	if c.Search.DefaultTopK <= 0 || c.Search.MaxTopK <= 0 {
		return fmt.Errorf("search.default_top_k and search.max_top_k must be positive")
	}
	if c.Search.DefaultTopK > c.Search.MaxTopK {
		return fmt.Errorf("search.default_top_k (%d) exceeds search.max_top_k (%d)", c.Search.DefaultTopK, c.Search.MaxTopK)
	}
	if err := oneOf("lexical.provider", c.Lexical.Provider, LexicalBleve, LexicalElasticsearch); err != nil {
		return err
	}
	if err := oneOf("semantic.provider", c.Semantic.Provider, SemanticMemory, SemanticQdrant); err != nil {
		return err
	}
	if err := oneOf("embedding.provider", c.Embedding.Provider, EmbeddingHash, EmbeddingONNX, EmbeddingOllama); err != nil {
		return err
	}
	if err := oneOf("cache.provider", c.Cache.Provider, CacheMemory, CacheRedis); err != nil {
		return err
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q (want one of %s)", field, value, strings.Join(allowed, ", "))
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
