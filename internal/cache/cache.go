// Package cache provides the result cache used by hybrid search: a Redis-backed cache for
// shared deployments and an in-process LRU cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperjump/kensaku/internal/config"
)

// Cache stores opaque JSON payloads under string keys with a time-to-live.
// Get reports a miss with found == false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// MakeKey returns prefix + ":" + the hex SHA-256 of the JSON encoding of parts.
// Map keys are encoded in sorted order, so equal inputs always produce equal keys.
func MakeKey(prefix string, parts ...interface{}) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("failed to encode cache key part: %w", err)
		}
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// New builds the cache selected by cfg. It returns nil, nil when caching is disabled.
func New(cfg *config.CacheConfig) (Cache, error) {
	if !cfg.EnabledOrDefault() {
		return nil, nil
	}
	switch cfg.Provider {
	case config.CacheRedis:
		c, err := NewRedisCache(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.CacheMemory, "":
		return NewMemoryCache(cfg.Size, TTL(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown cache provider: %s", cfg.Provider)
	}
}

// TTL returns the configured entry lifetime.
func TTL(cfg *config.CacheConfig) time.Duration {
	return time.Duration(cfg.TTLSeconds) * time.Second
}
