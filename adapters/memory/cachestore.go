package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/execgate/execgate/domain/cache"
	"github.com/execgate/execgate/ports"
)

// cacheShard is a single shard of the cache store.
type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]cache.Entry
}

// CacheStore is a sharded in-memory implementation of ports.CacheStore.
// Sharding keeps unrelated keys from contending on one lock. Entries
// past the stale grace window are dropped lazily on read and by a
// background sweep.
type CacheStore struct {
	shards    []*cacheShard
	numShards int
	clock     ports.Clock
	sweep     *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// CacheStoreConfig configures the cache store.
type CacheStoreConfig struct {
	NumShards     int           // Number of shards (default: 32)
	SweepInterval time.Duration // How often to drop hard-expired entries (default: 5m)
	Clock         ports.Clock   // Defaults to the real clock
}

// NewCacheStore creates a new sharded in-memory cache store.
func NewCacheStore(cfg CacheStoreConfig) *CacheStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}

	s := &CacheStore{
		shards:    make([]*cacheShard, cfg.NumShards),
		numShards: cfg.NumShards,
		clock:     cfg.Clock,
		done:      make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &cacheShard{entries: make(map[string]cache.Entry)}
	}

	s.sweep = time.NewTicker(cfg.SweepInterval)
	go s.sweepLoop()

	return s
}

// getShard returns the shard for a given key using consistent hashing.
func (s *CacheStore) getShard(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// Get retrieves the entry for a key. Hard-expired entries are removed
// and reported as missing.
func (s *CacheStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	shard := s.getShard(key)

	shard.mu.RLock()
	entry, ok := shard.entries[key]
	shard.mu.RUnlock()

	if !ok {
		return cache.Entry{}, false, nil
	}

	if cache.HardExpired(entry, s.clock.Now()) {
		shard.mu.Lock()
		// Re-check: a fresh entry may have replaced it meanwhile.
		if current, still := shard.entries[key]; still && current.WrittenAt.Equal(entry.WrittenAt) {
			delete(shard.entries, key)
		}
		shard.mu.Unlock()
		return cache.Entry{}, false, nil
	}

	return entry, true, nil
}

// Set unconditionally overwrites any prior entry for the key.
func (s *CacheStore) Set(ctx context.Context, key string, entry cache.Entry) error {
	shard := s.getShard(key)
	shard.mu.Lock()
	shard.entries[key] = entry
	shard.mu.Unlock()
	return nil
}

// Delete removes the entry for a key.
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	shard := s.getShard(key)
	shard.mu.Lock()
	delete(shard.entries, key)
	shard.mu.Unlock()
	return nil
}

// sweepLoop periodically removes hard-expired entries.
func (s *CacheStore) sweepLoop() {
	for {
		select {
		case <-s.sweep.C:
			s.doSweep()
		case <-s.done:
			return
		}
	}
}

// doSweep removes entries past the stale grace window.
func (s *CacheStore) doSweep() {
	now := s.clock.Now()
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, entry := range shard.entries {
			if cache.HardExpired(entry, now) {
				delete(shard.entries, key)
			}
		}
		shard.mu.Unlock()
	}
}

// Sweep runs one sweep pass immediately (for testing).
func (s *CacheStore) Sweep() {
	s.doSweep()
}

// Close stops the sweep goroutine.
func (s *CacheStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.sweep.Stop()
	})
	return nil
}

// Len returns the total number of entries across all shards (for testing).
func (s *CacheStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}

// realClock avoids importing adapters/clock from here.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Ensure interface compliance.
var _ ports.CacheStore = (*CacheStore)(nil)
