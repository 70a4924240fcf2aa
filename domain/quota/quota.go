// Package quota provides pure daily-quota accounting rules.
// Atomicity is the store's job; the rules here are deterministic.
package quota

import (
	"fmt"
	"time"

	"github.com/execgate/execgate/domain/plan"
)

// Period identifies one counting window for a ledger counter.
// Day periods reset implicitly when the UTC date changes; hour periods
// back the free-tier burst sub-limit. No reset job exists: an untouched
// period simply starts at zero.
type Period string

// DayOf returns the UTC calendar-day period containing t.
func DayOf(t time.Time) Period {
	return Period(t.UTC().Format("2006-01-02"))
}

// HourOf returns the UTC hour period containing t.
func HourOf(t time.Time) Period {
	return Period(t.UTC().Format("2006-01-02T15"))
}

// Retention returns how long counters for this period must be kept.
// Durable stores use it as the counter key expiry.
func (p Period) Retention() time.Duration {
	if len(p) > len("2006-01-02") {
		return 2 * time.Hour
	}
	return 48 * time.Hour
}

// Key builds the ledger key for one tenant, activity, and period.
func Key(tenantID string, activity plan.ActivityType, period Period) string {
	return fmt.Sprintf("quota:%s:%s:%s", tenantID, activity, period)
}

// Outcome of a consumption attempt.
type Outcome int

const (
	Consumed Outcome = iota
	Exceeded
)

// Result reports a consumption attempt.
// Count is the true post-increment value when consumed, and the
// unchanged current value when exceeded.
type Result struct {
	Outcome Outcome
	Count   int
	Limit   int
}

// Decide applies a limit to a pre-increment count.
// Invariant: a consumed Count never exceeds the limit; callers must
// evaluate Decide and persist the new count as one atomic unit.
// This is a PURE function.
func Decide(current, limit int) Result {
	if limit == plan.Unlimited {
		return Result{Outcome: Consumed, Count: current + 1, Limit: limit}
	}
	if current >= limit {
		return Result{Outcome: Exceeded, Count: current, Limit: limit}
	}
	return Result{Outcome: Consumed, Count: current + 1, Limit: limit}
}

// HourlySubLimit derives the free-tier hourly burst cap from a daily
// limit: a quarter of the day's budget, at least one. Zero disables
// the sub-limit (non-positive or unlimited daily budgets).
// This is a PURE function.
func HourlySubLimit(dailyLimit int) int {
	if dailyLimit <= 0 {
		return 0
	}
	hourly := dailyLimit / 4
	if hourly < 1 {
		hourly = 1
	}
	return hourly
}

// Status is the read model for one activity's usage today.
type Status struct {
	Used      int
	Limit     int
	Remaining int
	Unlimited bool
}

// StatusOf summarizes a counter against its limit.
// This is a PURE function.
func StatusOf(used, limit int) Status {
	if limit == plan.Unlimited {
		return Status{Used: used, Limit: limit, Remaining: plan.Unlimited, Unlimited: true}
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{Used: used, Limit: limit, Remaining: remaining}
}
