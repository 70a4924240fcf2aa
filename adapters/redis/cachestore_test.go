package redis_test

import (
	"context"
	"testing"
	"time"

	redisadapter "github.com/execgate/execgate/adapters/redis"
	"github.com/execgate/execgate/domain/cache"
)

func TestCacheStore_RoundTrip(t *testing.T) {
	_, client := newTestClient(t)
	store := redisadapter.NewCacheStore(client)
	ctx := context.Background()

	entry := cache.Entry{
		Payload:   []byte(`{"data":[{"id":"1"}]}`),
		WrittenAt: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		TTL:       3 * time.Minute,
	}
	if err := store.Set(ctx, "executions:inst-1:abc", entry); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := store.Get(ctx, "executions:inst-1:abc")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got.Payload) != string(entry.Payload) {
		t.Errorf("payload = %q", got.Payload)
	}
	if !got.WrittenAt.Equal(entry.WrittenAt) || got.TTL != entry.TTL {
		t.Errorf("entry = %+v, want %+v", got, entry)
	}
}

func TestCacheStore_MissingKey(t *testing.T) {
	_, client := newTestClient(t)
	store := redisadapter.NewCacheStore(client)

	_, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("missing key reported present")
	}
}

func TestCacheStore_RedisTTLCoversGraceWindow(t *testing.T) {
	mr, client := newTestClient(t)
	store := redisadapter.NewCacheStore(client)
	ctx := context.Background()

	entry := cache.Entry{Payload: []byte("x"), WrittenAt: time.Now(), TTL: time.Minute}
	store.Set(ctx, "k", entry)

	if ttl := mr.TTL("k"); ttl != 2*time.Minute {
		t.Errorf("redis ttl = %v, want 2m (grace factor × TTL)", ttl)
	}

	// Past the grace window the key is simply gone.
	mr.FastForward(3 * time.Minute)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("entry survived past the grace window")
	}
}

func TestCacheStore_CorruptEntryDropped(t *testing.T) {
	mr, client := newTestClient(t)
	store := redisadapter.NewCacheStore(client)
	ctx := context.Background()

	mr.Set("k", "not json")

	_, ok, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("corrupt entry reported present")
	}
	if mr.Exists("k") {
		t.Error("corrupt entry not deleted")
	}
}

func TestCacheStore_Delete(t *testing.T) {
	_, client := newTestClient(t)
	store := redisadapter.NewCacheStore(client)
	ctx := context.Background()

	store.Set(ctx, "k", cache.Entry{Payload: []byte("x"), WrittenAt: time.Now(), TTL: time.Minute})
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("deleted entry still present")
	}
}
