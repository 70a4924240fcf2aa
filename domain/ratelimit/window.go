// Package ratelimit provides pure per-tenant rate limiting algorithms.
// All functions are deterministic - same input always produces same output.
package ratelimit

import "time"

// WindowState represents the current state of a rate limit window (value type).
type WindowState struct {
	Count     int       // Requests in current window
	WindowEnd time.Time // When current window ends
	BurstUsed int       // Burst tokens used
}

// CheckResult represents the outcome of a rate limit check (value type).
type CheckResult struct {
	Allowed   bool
	Remaining int       // Requests remaining in window
	ResetAt   time.Time // When limit resets
}

// Config holds rate limit configuration (value type).
type Config struct {
	Limit       int           // Requests per window
	Window      time.Duration // Window duration
	BurstTokens int           // Extra tokens for bursts
}

// Check performs a fixed-window rate limit check and returns the
// updated state for the caller to persist. On window rollover the
// counter resets to zero for the new window.
// This is a PURE function - no side effects, deterministic.
func Check(state WindowState, cfg Config, now time.Time) (CheckResult, WindowState) {
	windowStart := now.Truncate(cfg.Window)
	windowEnd := windowStart.Add(cfg.Window)

	if state.WindowEnd.IsZero() || now.After(state.WindowEnd) {
		state = WindowState{WindowEnd: windowEnd}
	}

	if state.Count < cfg.Limit {
		state.Count++
		return CheckResult{
			Allowed:   true,
			Remaining: cfg.Limit - state.Count,
			ResetAt:   state.WindowEnd,
		}, state
	}

	// Over the limit - spend burst tokens if any remain.
	if state.BurstUsed < cfg.BurstTokens {
		state.Count++
		state.BurstUsed++
		return CheckResult{
			Allowed: true,
			ResetAt: state.WindowEnd,
		}, state
	}

	return CheckResult{
		Allowed: false,
		ResetAt: state.WindowEnd,
	}, state
}

// RetryAfter returns how long a denied caller should wait before
// retrying. Zero for allowed results or already-elapsed windows.
// This is a PURE function.
func RetryAfter(result CheckResult, now time.Time) time.Duration {
	if result.Allowed {
		return 0
	}
	wait := result.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
