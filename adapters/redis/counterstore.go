package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/execgate/execgate/ports"
)

// CounterStore implements ports.CounterStore on Redis. INCRBY gives
// the atomicity; the expiry is attached once per key so counters for
// elapsed quota periods and rate windows disappear on their own.
type CounterStore struct {
	client *redis.Client
}

// NewCounterStore creates a counter store over a Redis client.
func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{client: client}
}

// Increment atomically adds amount and returns the new value.
func (s *CounterStore) Increment(ctx context.Context, key string, amount int64, expiry time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, amount)
	if expiry > 0 {
		pipe.ExpireNX(ctx, key, expiry)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Get returns the current value, zero for missing keys.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
