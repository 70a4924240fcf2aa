// Package app provides application services that orchestrate domain
// logic through ports.
package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/execgate/execgate/adapters/metrics"
	"github.com/execgate/execgate/domain/cache"
	"github.com/execgate/execgate/domain/cachekey"
	"github.com/execgate/execgate/domain/gateway"
	"github.com/execgate/execgate/domain/plan"
	"github.com/execgate/execgate/domain/quota"
	"github.com/execgate/execgate/domain/ratelimit"
	"github.com/execgate/execgate/ports"
)

// ExecutionService mediates tenant access to workflow instance
// execution history: rate limiting, daily quotas, tiered caching, and
// single-flight upstream fetches, in that fixed order.
type ExecutionService struct {
	cacheStore ports.CacheStore
	quotaStore ports.QuotaStore
	rateLimit  ports.RateLimitStore
	fetcher    ports.UpstreamFetcher
	flight     *Flight
	clock      ports.Clock
	logger     zerolog.Logger
	metrics    *metrics.Collector // optional

	rateWindow time.Duration
	rateBurst  int

	// Plan table is hot-reloadable.
	plans atomic.Pointer[plan.Table]
}

// ExecutionDeps contains dependencies for ExecutionService.
type ExecutionDeps struct {
	Cache     ports.CacheStore
	Quota     ports.QuotaStore
	RateLimit ports.RateLimitStore
	Fetcher   ports.UpstreamFetcher
	Clock     ports.Clock
	Logger    zerolog.Logger
	Metrics   *metrics.Collector
}

// ExecutionConfig contains configuration for ExecutionService.
type ExecutionConfig struct {
	Plans      *plan.Table
	FetchWait  time.Duration // follower wait bound
	RateWindow time.Duration // rate limit window (default: 1m)
	RateBurst  int           // extra burst tokens per window
}

// NewExecutionService creates the facade service.
func NewExecutionService(deps ExecutionDeps, cfg ExecutionConfig) *ExecutionService {
	rateWindow := cfg.RateWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}

	s := &ExecutionService{
		cacheStore: deps.Cache,
		quotaStore: deps.Quota,
		rateLimit:  deps.RateLimit,
		fetcher:    deps.Fetcher,
		flight:     NewFlight(cfg.FetchWait),
		clock:      deps.Clock,
		logger:     deps.Logger.With().Str("component", "executions").Logger(),
		metrics:    deps.Metrics,
		rateWindow: rateWindow,
		rateBurst:  cfg.RateBurst,
	}
	s.plans.Store(cfg.Plans)
	return s
}

// UpdatePlans swaps in a new plan table. Thread-safe; in-flight
// requests keep the table they started with.
func (s *ExecutionService) UpdatePlans(table *plan.Table) {
	s.plans.Store(table)
}

// GetExecutions handles one execution-history request end to end.
//
// Order of operations is fixed: rate limit, quota, cache, fetch. Quota
// is consumed once per logical request whether or not the upstream is
// contacted - the daily limit governs request volume, not upstream
// load. A transient upstream failure falls back to a stale cache entry
// when one is still inside the grace window.
func (s *ExecutionService) GetExecutions(ctx context.Context, id gateway.Identity, instanceID string, params cachekey.Params, forceRefresh bool) (gateway.Result, error) {
	now := s.clock.Now()
	pol, err := s.plans.Load().Resolve(id.Tier)
	if err != nil {
		return gateway.Result{}, err
	}

	if err := s.checkRateLimit(ctx, id, pol, now); err != nil {
		return gateway.Result{}, err
	}
	if err := s.consumeQuota(ctx, id, pol, plan.ActivityRefreshes, now); err != nil {
		return gateway.Result{}, err
	}

	key := cachekey.Derive(instanceID, params)
	useCache := !pol.BypassCache

	if useCache && !forceRefresh {
		entry, ok, err := s.cacheStore.Get(ctx, key)
		if err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("cache read failed")
		} else if ok && cache.Classify(entry, now) == cache.Fresh {
			s.countCache("hit")
			return gateway.Result{
				Payload:  entry.Payload,
				Age:      cache.Age(entry, now),
				CacheHit: true,
			}, nil
		}
		s.countCache("miss")
	} else {
		s.countCache("bypass")
	}

	payload, shared, err := s.flight.Do(ctx, key, s.fetchFunc(ctx, instanceID, params, key, pol))
	if err == nil {
		if shared {
			s.countFlightShared()
		}
		return gateway.Result{Payload: payload, Shared: shared}, nil
	}

	var ftErr *gateway.FetchTimeoutError
	if errors.As(err, &ftErr) {
		s.countFlightTimeout()
		return gateway.Result{}, err
	}

	// Stale fallback applies only to transient upstream failures and
	// only for tiers that use the cache at all.
	if useCache && gateway.Transient(err) {
		if result, ok := s.staleFallback(ctx, key, err); ok {
			return result, nil
		}
	}

	return gateway.Result{}, err
}

// fetchFunc builds the leader's fetch closure. It runs detached from
// the initiating caller: a disconnect never cancels the fetch, and the
// leader always populates the cache for current and future callers.
func (s *ExecutionService) fetchFunc(ctx context.Context, instanceID string, params cachekey.Params, key string, pol plan.Policy) func() ([]byte, error) {
	detached := context.WithoutCancel(ctx)
	return func() ([]byte, error) {
		start := time.Now()
		payload, err := s.fetcher.Fetch(detached, instanceID, params)
		s.observeUpstream(time.Since(start), err)
		if err != nil {
			return nil, err
		}

		if !pol.BypassCache {
			entry := cache.Entry{Payload: payload, WrittenAt: s.clock.Now(), TTL: pol.TTL}
			if err := s.cacheStore.Set(detached, key, entry); err != nil {
				s.logger.Error().Err(err).Str("key", key).Msg("cache write failed")
			}
		}
		return payload, nil
	}
}

// staleFallback serves an expired-but-recent entry after a failed
// fetch. Entries past the grace window are unusable.
func (s *ExecutionService) staleFallback(ctx context.Context, key string, fetchErr error) (gateway.Result, bool) {
	entry, ok, err := s.cacheStore.Get(ctx, key)
	if err != nil || !ok {
		return gateway.Result{}, false
	}

	now := s.clock.Now()
	switch cache.Classify(entry, now) {
	case cache.Fresh:
		// Another leader repopulated the cache while we were failing.
		s.countCache("hit")
		return gateway.Result{Payload: entry.Payload, Age: cache.Age(entry, now), CacheHit: true}, true
	case cache.Stale:
		s.countCache("stale_serve")
		s.logger.Warn().Err(fetchErr).Str("key", key).Msg("serving stale payload after failed fetch")
		return gateway.Result{
			Payload:  entry.Payload,
			Stale:    true,
			Age:      cache.Age(entry, now),
			CacheHit: true,
		}, true
	default:
		return gateway.Result{}, false
	}
}

// checkRateLimit enforces the per-minute window. Testers always pass.
func (s *ExecutionService) checkRateLimit(ctx context.Context, id gateway.Identity, pol plan.Policy, now time.Time) error {
	if id.Tester {
		return nil
	}

	cfg := ratelimit.Config{
		Limit:       pol.RequestsPerMinute,
		Window:      s.rateWindow,
		BurstTokens: s.rateBurst,
	}
	result, err := s.rateLimit.GetAndCheck(ctx, id.TenantID, cfg, now)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant", id.TenantID).Msg("rate limit check failed")
		// Fail open: a broken limiter must not take down reads.
		return nil
	}
	if !result.Allowed {
		s.countRateLimited(pol.Tier)
		return &gateway.RateLimitError{RetryAfter: ratelimit.RetryAfter(result, now)}
	}
	return nil
}

// consumeQuota consumes one daily unit, plus the free-tier hourly
// sub-limit unit. Testers never consume quota.
//
// The hourly unit is not decremented back if the daily check then
// denies: the tenant is out of budget either way, and the next hour
// reopens the sub-limit regardless.
func (s *ExecutionService) consumeQuota(ctx context.Context, id gateway.Identity, pol plan.Policy, activity plan.ActivityType, now time.Time) error {
	if id.Tester {
		return nil
	}

	limit := pol.DailyLimit(activity)

	if pol.Tier == plan.TierFree {
		if hourly := quota.HourlySubLimit(limit); hourly > 0 {
			result, err := s.quotaStore.CheckAndConsume(ctx, id.TenantID, activity, quota.HourOf(now), hourly)
			if err != nil {
				return err
			}
			if result.Outcome == quota.Exceeded {
				s.countQuotaExceeded(pol.Tier, activity)
				return &gateway.QuotaError{Activity: activity, Limit: hourly}
			}
		}
	}

	result, err := s.quotaStore.CheckAndConsume(ctx, id.TenantID, activity, quota.DayOf(now), limit)
	if err != nil {
		return err
	}
	if result.Outcome == quota.Exceeded {
		s.countQuotaExceeded(pol.Tier, activity)
		return &gateway.QuotaError{Activity: activity, Limit: limit}
	}
	return nil
}

// Invalidate drops the cached entry for an instance and parameter set.
// Called after mutating operations upstream so the next read refetches.
func (s *ExecutionService) Invalidate(ctx context.Context, instanceID string, params cachekey.Params) error {
	return s.cacheStore.Delete(ctx, cachekey.Derive(instanceID, params))
}

// QuotaStatus reports today's usage against the tenant's limits for
// every activity the plan constrains.
func (s *ExecutionService) QuotaStatus(ctx context.Context, id gateway.Identity) (map[plan.ActivityType]quota.Status, error) {
	pol, err := s.plans.Load().Resolve(id.Tier)
	if err != nil {
		return nil, err
	}

	day := quota.DayOf(s.clock.Now())
	statuses := make(map[plan.ActivityType]quota.Status, len(pol.DailyLimits))
	for activity, limit := range pol.DailyLimits {
		used, err := s.quotaStore.Count(ctx, id.TenantID, activity, day)
		if err != nil {
			return nil, err
		}
		statuses[activity] = quota.StatusOf(used, limit)
	}
	return statuses, nil
}

// -----------------------------------------------------------------------------
// Metrics helpers (collector is optional)
// -----------------------------------------------------------------------------

func (s *ExecutionService) countCache(event string) {
	if s.metrics != nil {
		s.metrics.CacheEvents.WithLabelValues(event).Inc()
	}
}

func (s *ExecutionService) countRateLimited(tier plan.Tier) {
	if s.metrics != nil {
		s.metrics.RateLimitRejections.WithLabelValues(string(tier)).Inc()
	}
}

func (s *ExecutionService) countQuotaExceeded(tier plan.Tier, activity plan.ActivityType) {
	if s.metrics != nil {
		s.metrics.QuotaRejections.WithLabelValues(string(tier), string(activity)).Inc()
	}
}

func (s *ExecutionService) countFlightShared() {
	if s.metrics != nil {
		s.metrics.FlightShared.Inc()
	}
}

func (s *ExecutionService) countFlightTimeout() {
	if s.metrics != nil {
		s.metrics.FlightTimeouts.Inc()
	}
}

func (s *ExecutionService) observeUpstream(elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.UpstreamDuration.Observe(elapsed.Seconds())
	switch {
	case err == nil:
		s.metrics.UpstreamFetches.WithLabelValues("success").Inc()
	case gateway.Transient(err):
		s.metrics.UpstreamFetches.WithLabelValues("transient_error").Inc()
	default:
		s.metrics.UpstreamFetches.WithLabelValues("permanent_error").Inc()
	}
}
