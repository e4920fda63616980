// Package cache persists embedding vectors keyed by a deterministic
// fingerprint of (provider, model, dimensions, text).
//
// The persistent store is SQLite by default, with an optional Redis store
// for shared deployments. A small in-process LRU sits in front of either
// store so repeated lookups within one invocation skip storage entirely.
// Entries are written wholesale and never partially mutated; concurrent
// writers racing on one key are last-write-wins.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/embx-dev/embx/internal/config"
)

const defaultLRUSize = 4096

// Fingerprint returns the cache key for one embedded text. Identical inputs
// always produce the identical key; unset dimensions are normalized to 0 so
// "unset" and an explicit 0 fingerprint identically.
func Fingerprint(provider, model string, dimensions int, text string) string {
	if dimensions < 0 {
		dimensions = 0
	}
	raw := fmt.Sprintf("%s|%s|%d|%s", provider, model, dimensions, text)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Store is a persistent key→vector table with atomic single-key writes.
type Store interface {
	Get(ctx context.Context, key string) ([]float64, bool, error)
	Set(ctx context.Context, key string, vector []float64) error
	Close() error
}

// Cache is the vector cache used by the retrieval engine. A disabled cache
// always misses and writes nothing; callers never special-case it.
type Cache struct {
	store  Store
	hot    *lru.Cache[string, []float64]
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger attaches a logger for debug events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New builds the cache selected by the configuration. When caching is
// disabled, no storage location is created.
func New(cfg config.Config, opts ...Option) (*Cache, error) {
	c := &Cache{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	if !cfg.CacheEnabled {
		c.store = noopStore{}
		return c, nil
	}

	switch cfg.CacheBackend {
	case "", "sqlite":
		store, err := newSQLiteStore(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		c.store = store
		c.logger.Debug("sqlite cache store opened",
			zap.String("driver", DriverName), zap.String("build_mode", BuildMode))
	case "redis":
		store, err := newRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		c.store = store
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}

	hot, err := lru.New[string, []float64](defaultLRUSize)
	if err != nil {
		return nil, err
	}
	c.hot = hot
	return c, nil
}

// Get looks up the vector for one text. The boolean reports presence;
// storage I/O failures propagate to the caller.
func (c *Cache) Get(ctx context.Context, provider, model string, dimensions int, text string) ([]float64, bool, error) {
	key := Fingerprint(provider, model, dimensions, text)

	if c.hot != nil {
		if vector, ok := c.hot.Get(key); ok {
			return vector, true, nil
		}
	}

	vector, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	if c.hot != nil {
		c.hot.Add(key, vector)
	}
	c.logger.Debug("cache hit", zap.String("provider", provider), zap.String("model", model))
	return vector, true, nil
}

// Set stores the vector for one text, overwriting any previous entry.
func (c *Cache) Set(ctx context.Context, provider, model string, dimensions int, text string, vector []float64) error {
	key := Fingerprint(provider, model, dimensions, text)
	if err := c.store.Set(ctx, key, vector); err != nil {
		return err
	}
	if c.hot != nil {
		c.hot.Add(key, vector)
	}
	return nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

type noopStore struct{}

func (noopStore) Get(context.Context, string) ([]float64, bool, error) { return nil, false, nil }
func (noopStore) Set(context.Context, string, []float64) error        { return nil }
func (noopStore) Close() error                                        { return nil }
