package cache_test

import (
	"testing"
	"time"

	"github.com/execgate/execgate/domain/cache"
)

var writtenAt = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func entry(ttl time.Duration) cache.Entry {
	return cache.Entry{
		Payload:   []byte(`{"data":[]}`),
		WrittenAt: writtenAt,
		TTL:       ttl,
	}
}

func TestClassify_Boundaries(t *testing.T) {
	e := entry(3 * time.Minute)

	tests := []struct {
		name string
		age  time.Duration
		want cache.Freshness
	}{
		{"just written", 0, cache.Fresh},
		{"one second under TTL", 3*time.Minute - time.Second, cache.Fresh},
		{"exactly TTL", 3 * time.Minute, cache.Fresh},
		{"one second past TTL", 3*time.Minute + time.Second, cache.Stale},
		{"exactly grace boundary", 6 * time.Minute, cache.Stale},
		{"one second past grace", 6*time.Minute + time.Second, cache.Absent},
		{"far past grace", time.Hour, cache.Absent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cache.Classify(e, writtenAt.Add(tt.age))
			if got != tt.want {
				t.Errorf("Classify(age=%v) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestClassify_ZeroEntryIsAbsent(t *testing.T) {
	if got := cache.Classify(cache.Entry{}, writtenAt); got != cache.Absent {
		t.Errorf("zero entry = %v, want Absent", got)
	}
}

func TestClassify_ZeroTTLIsAbsent(t *testing.T) {
	e := entry(0)
	if got := cache.Classify(e, writtenAt); got != cache.Absent {
		t.Errorf("zero TTL = %v, want Absent", got)
	}
}

func TestClassify_FutureWriteIsFresh(t *testing.T) {
	// Writer clock ahead of reader clock.
	e := entry(time.Minute)
	if got := cache.Classify(e, writtenAt.Add(-10*time.Second)); got != cache.Fresh {
		t.Errorf("future write = %v, want Fresh", got)
	}
}

func TestAge(t *testing.T) {
	e := entry(time.Minute)
	if got := cache.Age(e, writtenAt.Add(45*time.Second)); got != 45*time.Second {
		t.Errorf("age = %v, want 45s", got)
	}
	if got := cache.Age(cache.Entry{}, writtenAt); got != 0 {
		t.Errorf("age of zero entry = %v, want 0", got)
	}
}

func TestHardExpired(t *testing.T) {
	e := entry(time.Minute)
	if cache.HardExpired(e, writtenAt.Add(90*time.Second)) {
		t.Error("stale entry reported hard-expired")
	}
	if !cache.HardExpired(e, writtenAt.Add(3*time.Minute)) {
		t.Error("entry past grace window not reported hard-expired")
	}
}

func TestFreshnessString(t *testing.T) {
	if cache.Fresh.String() != "fresh" || cache.Stale.String() != "stale" || cache.Absent.String() != "absent" {
		t.Error("unexpected freshness names")
	}
}
