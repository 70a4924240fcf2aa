package app

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/execgate/execgate/domain/gateway"
)

// Flight deduplicates concurrent upstream fetches per cache key. The
// first caller for a key becomes the leader and runs the fetch; callers
// arriving while it is in flight share the outcome. Keys leave the
// group as soon as the outcome is broadcast, so only overlapping calls
// are deduplicated - a sequential call may trigger a fresh fetch.
type Flight struct {
	group singleflight.Group
	wait  time.Duration
}

// DefaultFetchWait bounds how long a follower waits for a leader.
const DefaultFetchWait = 45 * time.Second

// NewFlight creates a coordinator with the given follower wait bound.
func NewFlight(wait time.Duration) *Flight {
	if wait <= 0 {
		wait = DefaultFetchWait
	}
	return &Flight{wait: wait}
}

// Do runs fn once per key among concurrent callers and returns the
// shared payload. The fn runs in its own goroutine: a follower's
// timeout or cancellation never interrupts it, and it always finishes
// for the benefit of the callers that stay.
//
// shared is true only for followers, the callers whose result was
// produced by another caller's fn. The leader that ran fn reports
// false, so counting shared results counts deduplicated calls.
// A follower whose bounded wait elapses gets gateway.FetchTimeoutError;
// a cancelled caller gets its context error.
func (f *Flight) Do(ctx context.Context, key string, fn func() ([]byte, error)) (payload []byte, shared bool, err error) {
	// Only the leader's closure runs; the channel receive below orders
	// the write ahead of the read.
	var leader bool
	ch := f.group.DoChan(key, func() (interface{}, error) {
		leader = true
		return fn()
	})

	timer := time.NewTimer(f.wait)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, !leader, res.Err
		}
		payload, _ := res.Val.([]byte)
		return payload, !leader, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-timer.C:
		return nil, false, &gateway.FetchTimeoutError{Wait: f.wait}
	}
}
