// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/execgate/execgate/domain/cache"
	"github.com/execgate/execgate/domain/cachekey"
	"github.com/execgate/execgate/domain/plan"
	"github.com/execgate/execgate/domain/quota"
	"github.com/execgate/execgate/domain/ratelimit"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// CacheStore persists response cache entries.
// Implementations must allow concurrent access to unrelated keys
// without a single global lock.
type CacheStore interface {
	// Get retrieves the entry for a key. The second return is false
	// when no usable entry exists; freshness classification is the
	// caller's job via domain/cache.Classify.
	Get(ctx context.Context, key string) (cache.Entry, bool, error)

	// Set unconditionally overwrites any prior entry for the key.
	Set(ctx context.Context, key string, entry cache.Entry) error

	// Delete removes the entry for a key, if any.
	Delete(ctx context.Context, key string) error
}

// QuotaStore atomically consumes daily quota units.
type QuotaStore interface {
	// CheckAndConsume applies quota.Decide to the stored counter as a
	// single atomic unit: concurrent calls for the same key never
	// jointly exceed the limit, and the returned count reflects the
	// true post-increment value.
	CheckAndConsume(ctx context.Context, tenantID string, activity plan.ActivityType, period quota.Period, limit int) (quota.Result, error)

	// Count reads the current counter without consuming.
	Count(ctx context.Context, tenantID string, activity plan.ActivityType, period quota.Period) (int, error)
}

// RateLimitStore checks and updates per-tenant request windows.
type RateLimitStore interface {
	// GetAndCheck atomically loads window state, applies
	// ratelimit.Check, and persists the updated state.
	GetAndCheck(ctx context.Context, tenantID string, cfg ratelimit.Config, now time.Time) (ratelimit.CheckResult, error)
}

// CounterStore is a durable atomic counter, the optional collaborator
// backing QuotaStore and RateLimitStore when process-local memory is
// insufficient across multiple gateway instances.
type CounterStore interface {
	// Increment atomically adds amount (which may be negative) and
	// returns the new value. A positive expiry bounds how long the
	// counter is retained.
	Increment(ctx context.Context, key string, amount int64, expiry time.Duration) (int64, error)

	// Get returns the current value, zero for missing keys.
	Get(ctx context.Context, key string) (int64, error)
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// UpstreamFetcher performs the actual call against a workflow
// instance's execution-history API. It is a scarce, rate-sensitive
// resource: only single-flight leaders may call it.
type UpstreamFetcher interface {
	// Fetch returns the raw response payload, or an error classified
	// via gateway.UpstreamError.
	Fetch(ctx context.Context, instanceID string, params cachekey.Params) ([]byte, error)
}

// Instance holds connection details for one workflow instance.
type Instance struct {
	ID      string
	BaseURL string
	APIKey  string
}

// ErrInstanceNotFound is returned by InstanceDirectory for unknown
// instance identifiers.
var ErrInstanceNotFound = errors.New("instance not found")

// InstanceDirectory resolves instance identifiers to connection
// details. Tenant/instance persistence is an external collaborator;
// the memory implementation serves tests and single-node deployments.
type InstanceDirectory interface {
	Lookup(ctx context.Context, instanceID string) (Instance, error)
}
