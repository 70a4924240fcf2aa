package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/execgate/execgate/domain/cache"
	"github.com/execgate/execgate/ports"
)

// CacheStore implements ports.CacheStore on Redis. Entries are stored
// as JSON with a Redis TTL of GraceFactor×TTL, so stale entries stay
// available for the error-fallback window and then vanish without a
// sweep job.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a cache store over a Redis client.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Get retrieves the entry for a key. Corrupt entries are dropped and
// reported as missing.
func (s *CacheStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("get cache entry %s: %w", key, err)
	}

	var entry cache.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.client.Del(ctx, key)
		return cache.Entry{}, false, nil
	}
	return entry, true, nil
}

// Set unconditionally overwrites any prior entry for the key.
func (s *CacheStore) Set(ctx context.Context, key string, entry cache.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, key, data, cache.GraceFactor*entry.TTL).Err(); err != nil {
		return fmt.Errorf("set cache entry %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry for a key.
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}

// Ensure interface compliance.
var _ ports.CacheStore = (*CacheStore)(nil)
