// Package durable implements the quota and rate-limit ports on top of
// any ports.CounterStore, so multiple gateway instances can share one
// set of counters (redis, sqlite).
package durable

import (
	"context"
	"fmt"

	"github.com/execgate/execgate/domain/plan"
	"github.com/execgate/execgate/domain/quota"
	"github.com/execgate/execgate/ports"
)

// QuotaStore is a ports.QuotaStore backed by a shared atomic counter.
type QuotaStore struct {
	counters ports.CounterStore
}

// NewQuotaStore creates a quota store over a counter store.
func NewQuotaStore(counters ports.CounterStore) *QuotaStore {
	return &QuotaStore{counters: counters}
}

// CheckAndConsume performs increment-then-check-and-rollback: the
// counter may transiently exceed the limit inside the store, but the
// compensating decrement runs before the result is reported, so no
// caller ever observes a consumed count above the limit.
func (s *QuotaStore) CheckAndConsume(ctx context.Context, tenantID string, activity plan.ActivityType, period quota.Period, limit int) (quota.Result, error) {
	key := quota.Key(tenantID, activity, period)

	newCount, err := s.counters.Increment(ctx, key, 1, period.Retention())
	if err != nil {
		return quota.Result{}, fmt.Errorf("consume quota: %w", err)
	}

	if limit != plan.Unlimited && newCount > int64(limit) {
		if _, err := s.counters.Increment(ctx, key, -1, 0); err != nil {
			return quota.Result{}, fmt.Errorf("roll back quota: %w", err)
		}
		return quota.Result{Outcome: quota.Exceeded, Count: limit, Limit: limit}, nil
	}

	return quota.Result{Outcome: quota.Consumed, Count: int(newCount), Limit: limit}, nil
}

// Count reads the current counter without consuming.
func (s *QuotaStore) Count(ctx context.Context, tenantID string, activity plan.ActivityType, period quota.Period) (int, error) {
	value, err := s.counters.Get(ctx, quota.Key(tenantID, activity, period))
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return int(value), nil
}

// Ensure interface compliance.
var _ ports.QuotaStore = (*QuotaStore)(nil)
