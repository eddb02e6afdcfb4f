package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/model"
)

// Cache stores opaque values under namespaced keys.
// A miss and a failed lookup are indistinguishable to callers.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Key builds a stable key from a namespace and free-form parts.
// Parts are normalised so "Foo " and "foo" share an entry.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(p))))
		h.Write([]byte{0})
	}
	return "claimwatch:v1:" + namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// GetJSON decodes a cached JSON value into out
func GetJSON(ctx context.Context, c Cache, key string, out any) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SetJSON encodes v and stores it
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

// New builds the cache described by cfg: Redis when a URL is set, otherwise
// memory backed by disk. A disabled cache never stores anything.
func New(ctx context.Context, cfg model.CacheConfig, logger *zap.Logger) (Cache, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	if cfg.RedisURL != "" {
		rc, err := NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Redis cache enabled")
		return rc, nil
	}

	dir := cfg.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Warn("no home directory, using memory-only cache", zap.Error(err))
			return NewMemoryCache(cfg.MemoryTTL, 10*time.Minute), nil
		}
		dir = filepath.Join(home, ".claimwatch", "cache")
	}
	return NewLayeredCache(cfg.MemoryTTL, dir, cfg.DiskTTL), nil
}

// Noop is a cache that never hits
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool)               { return nil, false }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(context.Context, string) error                     { return nil }
func (Noop) Clear(context.Context) error                              { return nil }
