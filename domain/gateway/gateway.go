// Package gateway provides the request/result value types and the
// error taxonomy shared between the application services and the HTTP
// surface.
package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/execgate/execgate/domain/plan"
)

// Identity is the resolved caller context, supplied by the
// authentication collaborator. The gateway never resolves identity
// itself.
type Identity struct {
	TenantID string
	Tier     plan.Tier
	Tester   bool // testers bypass rate limits and quotas
}

// Result is a successful execution-history response.
type Result struct {
	Payload  []byte
	Stale    bool          // served from the grace window after a failed fetch
	Age      time.Duration // payload age; zero for bypass/fresh-fetch results
	CacheHit bool
	Shared   bool // payload came from another caller's in-flight fetch
}

// RateLimitError denies a request that exceeded its per-minute budget.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// QuotaError denies a request that exhausted a daily activity budget.
type QuotaError struct {
	Activity plan.ActivityType
	Limit    int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily %s quota of %d exhausted", e.Activity, e.Limit)
}

// FetchTimeoutError is returned to a follower whose bounded wait for
// the leader's fetch elapsed. The leader is unaffected.
type FetchTimeoutError struct {
	Wait time.Duration
}

func (e *FetchTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for in-flight fetch", e.Wait)
}

// UpstreamErrorKind separates errors worth a stale fallback from ones
// that are not.
type UpstreamErrorKind int

const (
	// UpstreamTransient: network failures, 5xx, upstream throttling.
	// Candidates for serving a stale cache entry.
	UpstreamTransient UpstreamErrorKind = iota
	// UpstreamPermanent: the request itself is bad (unknown instance,
	// rejected parameters). Never recovered via stale data.
	UpstreamPermanent
)

// UpstreamError wraps a failed upstream fetch with its classification.
type UpstreamError struct {
	Kind   UpstreamErrorKind
	Status int // HTTP status when applicable, zero otherwise
	Err    error
}

func (e *UpstreamError) Error() string {
	kind := "transient"
	if e.Kind == UpstreamPermanent {
		kind = "permanent"
	}
	if e.Status > 0 {
		return fmt.Sprintf("upstream %s error (status %d): %v", kind, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s error: %v", kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Transient reports whether err is an upstream error eligible for the
// stale-fallback path.
func Transient(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Kind == UpstreamTransient
}

// ErrorResponse is the client-facing shape of a failure (value type).
// Every failure kind maps to a distinct machine-readable code.
type ErrorResponse struct {
	Status  int
	Code    string
	Message string
}

// Common error responses
var (
	RespMissingIdentity = ErrorResponse{
		Status:  401,
		Code:    "missing_identity",
		Message: "Tenant identity was not supplied",
	}
	RespUnknownTier = ErrorResponse{
		Status:  403,
		Code:    "unknown_tier",
		Message: "Subscription tier is not recognized",
	}
	RespRateLimited = ErrorResponse{
		Status:  429,
		Code:    "rate_limit_exceeded",
		Message: "Too many requests, slow down",
	}
	RespQuotaExceeded = ErrorResponse{
		Status:  429,
		Code:    "quota_exceeded",
		Message: "Daily quota exhausted for this activity",
	}
	RespUpstreamUnavailable = ErrorResponse{
		Status:  502,
		Code:    "upstream_unavailable",
		Message: "Workflow instance is unreachable",
	}
	RespUpstreamRejected = ErrorResponse{
		Status:  422,
		Code:    "upstream_rejected",
		Message: "Workflow instance rejected the request",
	}
	RespFetchTimeout = ErrorResponse{
		Status:  504,
		Code:    "fetch_timeout",
		Message: "Timed out waiting for execution data",
	}
	RespInternal = ErrorResponse{
		Status:  500,
		Code:    "internal_error",
		Message: "Internal error",
	}
)

// ResponseFor maps a service error to its client-facing response.
func ResponseFor(err error) ErrorResponse {
	var (
		rl *RateLimitError
		qe *QuotaError
		ft *FetchTimeoutError
		ue *UpstreamError
	)
	switch {
	case errors.As(err, &rl):
		return RespRateLimited
	case errors.As(err, &qe):
		resp := RespQuotaExceeded
		resp.Message = fmt.Sprintf("Daily %s quota of %d exhausted", qe.Activity, qe.Limit)
		return resp
	case errors.As(err, &ft):
		return RespFetchTimeout
	case errors.As(err, &ue):
		if ue.Kind == UpstreamPermanent {
			return RespUpstreamRejected
		}
		return RespUpstreamUnavailable
	case errors.Is(err, plan.ErrUnknownTier):
		return RespUnknownTier
	default:
		return RespInternal
	}
}
