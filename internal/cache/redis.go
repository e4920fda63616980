package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "embx:embedding:"

// redisStore keeps vectors in Redis so several machines can share one cache.
// Entries are stored as JSON float arrays under a prefixed fingerprint key
// with no expiry; SET is atomic per key, matching the last-write-wins
// contract of the SQLite store.
type redisStore struct {
	client *redis.Client
}

func newRedisStore(rawURL string) (*redisStore, error) {
	if rawURL == "" {
		rawURL = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	return &redisStore{client: redis.NewClient(opts)}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]float64, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	var vector []float64
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return vector, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, vector []float64) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, string(raw), 0).Err(); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
