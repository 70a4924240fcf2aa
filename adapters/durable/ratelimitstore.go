package durable

import (
	"context"
	"fmt"
	"time"

	"github.com/execgate/execgate/domain/ratelimit"
	"github.com/execgate/execgate/ports"
)

// RateLimitStore is a ports.RateLimitStore over a shared atomic
// counter: one counter per tenant per fixed window. Burst tokens are a
// memory-store refinement and are not tracked here; the shared counter
// enforces the plain window limit.
type RateLimitStore struct {
	counters ports.CounterStore
}

// NewRateLimitStore creates a rate limit store over a counter store.
func NewRateLimitStore(counters ports.CounterStore) *RateLimitStore {
	return &RateLimitStore{counters: counters}
}

// GetAndCheck increments the tenant's counter for the current window
// and compares it to the limit. Counters expire with their window, so
// rollover resets the count implicitly.
func (s *RateLimitStore) GetAndCheck(ctx context.Context, tenantID string, cfg ratelimit.Config, now time.Time) (ratelimit.CheckResult, error) {
	windowStart := now.Truncate(cfg.Window)
	windowEnd := windowStart.Add(cfg.Window)
	key := fmt.Sprintf("ratelimit:%s:%d", tenantID, windowStart.Unix())

	count, err := s.counters.Increment(ctx, key, 1, 2*cfg.Window)
	if err != nil {
		return ratelimit.CheckResult{}, fmt.Errorf("count request: %w", err)
	}

	if count > int64(cfg.Limit) {
		return ratelimit.CheckResult{Allowed: false, ResetAt: windowEnd}, nil
	}

	return ratelimit.CheckResult{
		Allowed:   true,
		Remaining: cfg.Limit - int(count),
		ResetAt:   windowEnd,
	}, nil
}

// Ensure interface compliance.
var _ ports.RateLimitStore = (*RateLimitStore)(nil)
