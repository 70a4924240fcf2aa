// Package plan provides subscription tier policies and pure lookups.
package plan

import (
	"errors"
	"fmt"
	"time"
)

// Tier identifies a subscription level.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)

// ActivityType identifies a daily-quota bucket.
type ActivityType string

const (
	ActivityRefreshes  ActivityType = "refreshes"
	ActivityToggles    ActivityType = "toggles"
	ActivityErrorViews ActivityType = "error_views"
)

// Unlimited marks a daily limit with no cap.
const Unlimited = -1

// ErrUnknownTier is returned when a tier has no configured policy.
// Callers must decide their own fallback; Resolve never defaults silently.
var ErrUnknownTier = errors.New("unknown plan tier")

// Policy is the per-tier configuration (immutable value type).
// One Policy exists per tier; all fields are fixed at startup.
type Policy struct {
	Tier              Tier
	TTL               time.Duration        // cache freshness window
	DailyLimits       map[ActivityType]int // Unlimited (-1) = no cap
	RequestsPerMinute int
	BypassCache       bool // tier is exempt from caching entirely
}

// DailyLimit returns the daily limit for an activity type.
// Activities without an explicit entry are unlimited.
func (p Policy) DailyLimit(activity ActivityType) int {
	limit, ok := p.DailyLimits[activity]
	if !ok {
		return Unlimited
	}
	return limit
}

// Table is the closed, validated set of policies, one per tier.
// Built once at process start and shared read-only afterwards.
type Table struct {
	policies map[Tier]Policy
}

// NewTable builds a policy table, failing fast on misconfiguration.
func NewTable(policies []Policy) (*Table, error) {
	if len(policies) == 0 {
		return nil, errors.New("plan table: no policies configured")
	}

	byTier := make(map[Tier]Policy, len(policies))
	for _, p := range policies {
		if p.Tier == "" {
			return nil, errors.New("plan table: policy with empty tier")
		}
		if _, dup := byTier[p.Tier]; dup {
			return nil, fmt.Errorf("plan table: duplicate tier %q", p.Tier)
		}
		if !p.BypassCache && p.TTL <= 0 {
			return nil, fmt.Errorf("plan table: tier %q has no TTL and does not bypass the cache", p.Tier)
		}
		if p.RequestsPerMinute <= 0 {
			return nil, fmt.Errorf("plan table: tier %q has non-positive rate limit", p.Tier)
		}
		for activity, limit := range p.DailyLimits {
			if limit < Unlimited {
				return nil, fmt.Errorf("plan table: tier %q has invalid %s limit %d", p.Tier, activity, limit)
			}
		}
		byTier[p.Tier] = p
	}

	return &Table{policies: byTier}, nil
}

// Resolve returns the policy for a tier.
// Unrecognized tiers fail with ErrUnknownTier.
func (t *Table) Resolve(tier Tier) (Policy, error) {
	p, ok := t.policies[tier]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return p, nil
}

// Tiers returns the configured tiers in unspecified order.
func (t *Table) Tiers() []Tier {
	tiers := make([]Tier, 0, len(t.policies))
	for tier := range t.policies {
		tiers = append(tiers, tier)
	}
	return tiers
}

// Defaults returns the built-in policy set.
// Limits mirror the hosted plans: free users get a long cache and a
// few refreshes per day, paid tiers get a short cache and real volume,
// enterprise instances are never cached at all.
func Defaults() []Policy {
	return []Policy{
		{
			Tier: TierFree,
			TTL:  30 * time.Minute,
			DailyLimits: map[ActivityType]int{
				ActivityRefreshes:  5,
				ActivityToggles:    0,
				ActivityErrorViews: 3,
			},
			RequestsPerMinute: 60,
		},
		{
			Tier: TierPro,
			TTL:  3 * time.Minute,
			DailyLimits: map[ActivityType]int{
				ActivityRefreshes:  200,
				ActivityToggles:    100,
				ActivityErrorViews: Unlimited,
			},
			RequestsPerMinute: 120,
		},
		{
			Tier: TierBusiness,
			TTL:  time.Minute,
			DailyLimits: map[ActivityType]int{
				ActivityRefreshes:  1000,
				ActivityToggles:    500,
				ActivityErrorViews: Unlimited,
			},
			RequestsPerMinute: 300,
		},
		{
			Tier: TierEnterprise,
			DailyLimits: map[ActivityType]int{
				ActivityRefreshes:  Unlimited,
				ActivityToggles:    Unlimited,
				ActivityErrorViews: Unlimited,
			},
			RequestsPerMinute: 600,
			BypassCache:       true,
		},
	}
}
