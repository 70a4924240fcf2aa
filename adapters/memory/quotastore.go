// Package memory provides sharded in-memory implementations of the
// storage ports for single-node deployments and tests.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/execgate/execgate/domain/plan"
	"github.com/execgate/execgate/domain/quota"
	"github.com/execgate/execgate/ports"
)

// quotaCounter is one ledger counter with its last-touched time for
// garbage collection.
type quotaCounter struct {
	count   int
	touched time.Time
}

// quotaShard is a single shard of the quota store.
type quotaShard struct {
	mu       sync.Mutex
	counters map[string]quotaCounter
}

// QuotaStore is a sharded in-memory implementation of ports.QuotaStore.
// The shard lock makes check-and-increment a single atomic unit, so a
// counter is never observed above its limit.
type QuotaStore struct {
	shards    []*quotaShard
	numShards int
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// QuotaStoreConfig configures the quota store.
type QuotaStoreConfig struct {
	NumShards       int           // Number of shards (default: 32)
	CleanupInterval time.Duration // How often to drop stale periods (default: 1h)
}

// NewQuotaStore creates a new sharded in-memory quota store.
func NewQuotaStore(cfg QuotaStoreConfig) *QuotaStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}

	s := &QuotaStore{
		shards:    make([]*quotaShard, cfg.NumShards),
		numShards: cfg.NumShards,
		done:      make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &quotaShard{counters: make(map[string]quotaCounter)}
	}

	s.cleanup = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

// getShard returns the shard for a given key using consistent hashing.
func (s *QuotaStore) getShard(key string) *quotaShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// CheckAndConsume atomically applies the quota rule to the counter.
// A period that has never been touched starts at zero; new UTC days
// therefore reset counters without any explicit job.
func (s *QuotaStore) CheckAndConsume(ctx context.Context, tenantID string, activity plan.ActivityType, period quota.Period, limit int) (quota.Result, error) {
	key := quota.Key(tenantID, activity, period)
	shard := s.getShard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	counter := shard.counters[key]
	result := quota.Decide(counter.count, limit)
	if result.Outcome == quota.Consumed {
		shard.counters[key] = quotaCounter{count: result.Count, touched: time.Now()}
	}
	return result, nil
}

// Count reads the current counter without consuming.
func (s *QuotaStore) Count(ctx context.Context, tenantID string, activity plan.ActivityType, period quota.Period) (int, error) {
	key := quota.Key(tenantID, activity, period)
	shard := s.getShard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()
	return shard.counters[key].count, nil
}

// cleanupLoop periodically removes counters from elapsed periods.
func (s *QuotaStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.doCleanup()
		case <-s.done:
			return
		}
	}
}

// doCleanup removes counters untouched for two days; by then their
// period has elapsed and no request can consult them again.
func (s *QuotaStore) doCleanup() {
	cutoff := time.Now().Add(-48 * time.Hour)
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, counter := range shard.counters {
			if counter.touched.Before(cutoff) {
				delete(shard.counters, key)
			}
		}
		shard.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (s *QuotaStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cleanup.Stop()
	})
	return nil
}

// Len returns the total number of counters across all shards (for testing).
func (s *QuotaStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.counters)
		shard.mu.Unlock()
	}
	return total
}

// Ensure interface compliance.
var _ ports.QuotaStore = (*QuotaStore)(nil)
