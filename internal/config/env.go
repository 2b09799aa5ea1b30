package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with the service's environment variables. Unset variables
// leave the YAML value in place; malformed numbers or booleans are reported.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("REDIS_URL", &cfg.Cache.Redis.URL)
	str("REDIS_HOST", &cfg.Cache.Redis.Host)
	str("REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	str("ELASTIC_URL", &cfg.Lexical.Elasticsearch.URL)
	str("ELASTIC_API_KEY", &cfg.Lexical.Elasticsearch.APIKey)
	str("ELASTIC_INDEX", &cfg.Lexical.Elasticsearch.Index)
	str("QDRANT_URL", &cfg.Semantic.Qdrant.URL)
	str("QDRANT_API_KEY", &cfg.Semantic.Qdrant.APIKey)
	str("QDRANT_COLLECTION", &cfg.Semantic.Qdrant.Collection)
	str("OLLAMA_URL", &cfg.Embedding.Ollama.URL)

	// A Redis location in the environment selects the Redis cache.
	for _, key := range []string{"REDIS_URL", "REDIS_HOST"} {
		if v, ok := lookup(key); ok && v != "" {
			cfg.Cache.Provider = CacheRedis
		}
	}

	for _, e := range []struct {
		key string
		dst *int
	}{
		{"REDIS_PORT", &cfg.Cache.Redis.Port},
		{"REDIS_DB", &cfg.Cache.Redis.DB},
		{"REDIS_CACHE_TTL_SECONDS", &cfg.Cache.TTLSeconds},
	} {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.key, v, err)
		}
		*e.dst = n
	}

	if v, ok := lookup("REDIS_TLS"); ok && v != "" {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_TLS %q: %w", v, err)
		}
		cfg.Cache.Redis.TLS = b
	}
	if v, ok := lookup("REDIS_CACHE_ENABLED"); ok && v != "" {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_CACHE_ENABLED %q: %w", v, err)
		}
		cfg.Cache.Enabled = &b
	}
	return nil
}

// parseBool accepts the usual strconv forms plus yes/no and on/off.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(v))
}
