package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/execgate/execgate/adapters/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "counters.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) *sqlite.CounterStore {
	t.Helper()
	return sqlite.NewCounterStore(newTestDB(t))
}

func TestCounterStore_Increment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Increment(ctx, "quota:tenant-1:refreshes:2025-03-10", 1, time.Hour)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}
}

func TestCounterStore_NegativeIncrement(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Increment(ctx, "k", 3, time.Hour)
	got, err := store.Increment(ctx, "k", -1, 0)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestCounterStore_GetMissingKey(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 0 {
		t.Errorf("missing key = %d, want 0", got)
	}
}

func TestCounterStore_ConcurrentIncrements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Increment(ctx, "k", 1, time.Hour); err != nil {
				t.Errorf("Increment: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != workers {
		t.Errorf("count = %d, want %d", got, workers)
	}
}

func TestCounterStore_PurgeDropsExpiredOnly(t *testing.T) {
	db := newTestDB(t)
	store := sqlite.NewCounterStore(db)
	ctx := context.Background()

	store.Increment(ctx, "expired", 1, time.Hour)
	store.Increment(ctx, "live", 1, time.Hour)
	store.Increment(ctx, "forever", 1, 0)

	// Backdate one counter past its retention.
	if _, err := db.ExecContext(ctx,
		`UPDATE counters SET expires_at = ? WHERE key = 'expired'`,
		time.Now().Add(-time.Minute).Unix()); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := store.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}

	if got, _ := store.Get(ctx, "expired"); got != 0 {
		t.Errorf("expired counter = %d, want 0", got)
	}
	if got, _ := store.Get(ctx, "live"); got != 1 {
		t.Errorf("live counter = %d, want 1", got)
	}
	if got, _ := store.Get(ctx, "forever"); got != 1 {
		t.Errorf("no-expiry counter = %d, want 1", got)
	}
}
