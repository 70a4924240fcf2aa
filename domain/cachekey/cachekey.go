// Package cachekey derives deterministic cache keys for upstream queries.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Params holds normalized query parameters for an upstream fetch
// (pagination cursor, filters, page size).
type Params map[string]string

// Canonical serializes parameters into an order-independent string.
// Entries are sorted by name; empty values are dropped so an omitted
// parameter and an explicitly empty one derive the same key.
func (p Params) Canonical() string {
	names := make([]string, 0, len(p))
	for name, value := range p {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(p[name])
	}
	return b.String()
}

// Clone returns a copy of the parameter set with empty values dropped.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for name, value := range p {
		if value == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// Derive builds the cache key for an instance and parameter set.
// Pure and deterministic: two semantically identical parameter sets
// derive the same key, any differing value derives a different one.
// Format: executions:<instanceID>:<sha256 of the canonical form>.
func Derive(instanceID string, params Params) string {
	sum := sha256.Sum256([]byte(params.Canonical()))
	return "executions:" + instanceID + ":" + hex.EncodeToString(sum[:])
}
