package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/execgate/execgate/domain/ratelimit"
	"github.com/execgate/execgate/ports"
)

// rateLimitShard is a single shard of the rate limit store.
type rateLimitShard struct {
	mu    sync.Mutex
	state map[string]ratelimit.WindowState
}

// RateLimitStore is a sharded in-memory implementation of
// ports.RateLimitStore. Load-check-store happens under one shard lock
// so concurrent requests for the same tenant never lose updates.
type RateLimitStore struct {
	shards    []*rateLimitShard
	numShards int
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// RateLimitStoreConfig configures the rate limit store.
type RateLimitStoreConfig struct {
	NumShards       int           // Number of shards (default: 32)
	CleanupInterval time.Duration // How often to drop expired windows (default: 5m)
}

// NewRateLimitStore creates a new sharded in-memory rate limit store.
func NewRateLimitStore(cfg RateLimitStoreConfig) *RateLimitStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	s := &RateLimitStore{
		shards:    make([]*rateLimitShard, cfg.NumShards),
		numShards: cfg.NumShards,
		done:      make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &rateLimitShard{state: make(map[string]ratelimit.WindowState)}
	}

	s.cleanup = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

// getShard returns the shard for a given tenant using consistent hashing.
func (s *RateLimitStore) getShard(tenantID string) *rateLimitShard {
	h := fnv.New32a()
	h.Write([]byte(tenantID))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// GetAndCheck atomically loads state, checks the rate limit, and
// persists the updated window.
func (s *RateLimitStore) GetAndCheck(ctx context.Context, tenantID string, cfg ratelimit.Config, now time.Time) (ratelimit.CheckResult, error) {
	shard := s.getShard(tenantID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	state := shard.state[tenantID]
	result, newState := ratelimit.Check(state, cfg, now)
	shard.state[tenantID] = newState
	return result, nil
}

// cleanupLoop periodically removes expired window entries.
func (s *RateLimitStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.doCleanup()
		case <-s.done:
			return
		}
	}
}

// doCleanup removes window states that ended more than an hour ago.
func (s *RateLimitStore) doCleanup() {
	cutoff := time.Now().Add(-time.Hour)
	for _, shard := range s.shards {
		shard.mu.Lock()
		for tenant, state := range shard.state {
			if !state.WindowEnd.IsZero() && state.WindowEnd.Before(cutoff) {
				delete(shard.state, tenant)
			}
		}
		shard.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (s *RateLimitStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cleanup.Stop()
	})
	return nil
}

// Len returns the total number of tracked tenants (for testing).
func (s *RateLimitStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.state)
		shard.mu.Unlock()
	}
	return total
}

// Ensure interface compliance.
var _ ports.RateLimitStore = (*RateLimitStore)(nil)
