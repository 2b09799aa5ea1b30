package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kensaku/data/db/documents.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kensaku/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/kensaku/data/indices/vectors.bin"
	}

	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.DefaultAlpha == nil {
		a := 0.5
		cfg.Search.DefaultAlpha = &a
	}
	if cfg.Search.QuestionType == "" {
		cfg.Search.QuestionType = "question"
	}
	if cfg.Search.MaterialType == "" {
		cfg.Search.MaterialType = "material"
	}

	if cfg.Lexical.Provider == "" {
		cfg.Lexical.Provider = LexicalBleve
	}
	if cfg.Lexical.Elasticsearch.URL == "" {
		cfg.Lexical.Elasticsearch.URL = "http://localhost:9200"
	}
	if cfg.Lexical.Elasticsearch.Index == "" {
		cfg.Lexical.Elasticsearch.Index = "documents"
	}

	if cfg.Semantic.Provider == "" {
		cfg.Semantic.Provider = SemanticMemory
	}
	if cfg.Semantic.Qdrant.URL == "" {
		cfg.Semantic.Qdrant.URL = "http://localhost:6334"
	}
	if cfg.Semantic.Qdrant.Collection == "" {
		cfg.Semantic.Qdrant.Collection = "documents"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = EmbeddingHash
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kensaku/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Ollama.URL == "" {
		cfg.Embedding.Ollama.URL = "http://localhost:11434"
	}
	if cfg.Embedding.Ollama.Model == "" {
		cfg.Embedding.Ollama.Model = "nomic-embed-text"
	}

	if cfg.Cache.Enabled == nil {
		t := true
		cfg.Cache.Enabled = &t
	}
	if cfg.Cache.Provider == "" {
		cfg.Cache.Provider = CacheMemory
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 600
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 1024
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "search:hybrid"
	}
	if cfg.Cache.Redis.Host == "" {
		cfg.Cache.Redis.Host = "localhost"
	}
	if cfg.Cache.Redis.Port == 0 {
		cfg.Cache.Redis.Port = 6379
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx", ".pptx", ".odt", ".odp", ".ods", ".rtf"}
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
