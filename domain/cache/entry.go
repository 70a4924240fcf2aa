// Package cache provides response cache entry types and freshness rules.
// Storage lives behind ports.CacheStore; this package only decides what
// a stored entry is still good for.
package cache

import "time"

// Entry is a cached upstream response (immutable value type).
// A refresh writes a brand-new entry that fully replaces the old one.
type Entry struct {
	Payload   []byte        `json:"payload"`
	WrittenAt time.Time     `json:"written_at"`
	TTL       time.Duration `json:"ttl"`
}

// Freshness classifies what an entry may be used for.
type Freshness int

const (
	// Absent: no usable entry (missing, zero-valued, or hard-expired).
	Absent Freshness = iota
	// Fresh: age within TTL, serve as a normal hit.
	Fresh
	// Stale: past TTL but within the grace window, usable only as an
	// error fallback when the upstream is unavailable.
	Stale
)

// String returns the lowercase name of the freshness state.
func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// GraceFactor bounds the stale window: entries older than
// GraceFactor×TTL are gone even for fallback purposes.
const GraceFactor = 2

// Classify reports an entry's freshness at a given instant.
// This is a PURE function.
func Classify(e Entry, now time.Time) Freshness {
	if e.WrittenAt.IsZero() || e.TTL <= 0 {
		return Absent
	}
	age := now.Sub(e.WrittenAt)
	switch {
	case age < 0:
		// Clock skew between writer and reader. Treat as just written.
		return Fresh
	case age <= e.TTL:
		return Fresh
	case age <= GraceFactor*e.TTL:
		return Stale
	default:
		return Absent
	}
}

// Age returns how old the entry is at a given instant.
func Age(e Entry, now time.Time) time.Duration {
	if e.WrittenAt.IsZero() {
		return 0
	}
	return now.Sub(e.WrittenAt)
}

// HardExpired reports whether the entry is past the stale grace window
// and can be garbage-collected.
func HardExpired(e Entry, now time.Time) bool {
	return Classify(e, now) == Absent
}
