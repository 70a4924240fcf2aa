package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/execgate/execgate/app"
	"github.com/execgate/execgate/domain/gateway"
)

func TestFlight_ConcurrentCallersShareOneFetch(t *testing.T) {
	flight := app.NewFlight(5 * time.Second)

	var fetches atomic.Int32
	release := make(chan struct{})
	fn := func() ([]byte, error) {
		fetches.Add(1)
		<-release
		return []byte("payload"), nil
	}

	const callers = 10
	var wg sync.WaitGroup
	var sharedCount atomic.Int32
	results := make([][]byte, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, shared, err := flight.Do(context.Background(), "key", fn)
			results[i], errs[i] = payload, err
			if shared {
				sharedCount.Add(1)
			}
		}(i)
	}

	// Give the callers time to pile onto the key before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := fetches.Load(); got != 1 {
		t.Errorf("fetch ran %d times, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if string(results[i]) != "payload" {
			t.Errorf("caller %d payload = %q", i, results[i])
		}
	}
	// Exactly one caller ran the fetch; everyone else shared it.
	if sharedCount.Load() != callers-1 {
		t.Errorf("shared reported by %d callers, want %d (the leader reports false)", sharedCount.Load(), callers-1)
	}
}

func TestFlight_SequentialCallsFetchIndependently(t *testing.T) {
	flight := app.NewFlight(5 * time.Second)

	var fetches atomic.Int32
	fn := func() ([]byte, error) {
		fetches.Add(1)
		return []byte("p"), nil
	}

	for i := 0; i < 3; i++ {
		if _, shared, err := flight.Do(context.Background(), "key", fn); err != nil || shared {
			t.Fatalf("call %d: shared=%v err=%v", i, shared, err)
		}
	}
	if got := fetches.Load(); got != 3 {
		t.Errorf("fetch ran %d times, want 3 (only overlapping calls deduplicate)", got)
	}
}

func TestFlight_FollowerTimeoutDoesNotStopFetch(t *testing.T) {
	flight := app.NewFlight(20 * time.Millisecond)

	fetchDone := make(chan struct{})
	fn := func() ([]byte, error) {
		time.Sleep(100 * time.Millisecond)
		close(fetchDone)
		return []byte("late"), nil
	}

	_, _, err := flight.Do(context.Background(), "key", fn)

	var ft *gateway.FetchTimeoutError
	if !errors.As(err, &ft) {
		t.Fatalf("err = %v, want FetchTimeoutError", err)
	}
	if ft.Wait != 20*time.Millisecond {
		t.Errorf("wait = %v, want 20ms", ft.Wait)
	}

	// The abandoned fetch still runs to completion.
	select {
	case <-fetchDone:
	case <-time.After(time.Second):
		t.Error("fetch did not finish after the waiter timed out")
	}
}

func TestFlight_CancelledCallerGetsContextError(t *testing.T) {
	flight := app.NewFlight(5 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := flight.Do(ctx, "key", func() ([]byte, error) {
		time.Sleep(time.Second)
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFlight_ErrorSharedWithFollowers(t *testing.T) {
	flight := app.NewFlight(5 * time.Second)

	fetchErr := errors.New("upstream exploded")
	release := make(chan struct{})
	fn := func() ([]byte, error) {
		<-release
		return nil, fetchErr
	}

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = flight.Do(context.Background(), "key", fn)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, fetchErr) {
			t.Errorf("caller %d err = %v, want the fetch error", i, err)
		}
	}
}

func TestFlight_DistinctKeysDoNotShare(t *testing.T) {
	flight := app.NewFlight(5 * time.Second)

	var fetches atomic.Int32
	release := make(chan struct{})
	fn := func() ([]byte, error) {
		fetches.Add(1)
		<-release
		return []byte("p"), nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			flight.Do(context.Background(), key, fn)
		}(key)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := fetches.Load(); got != 2 {
		t.Errorf("fetch ran %d times for 2 keys, want 2", got)
	}
}
