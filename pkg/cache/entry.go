// Package cache stores fetched source pages in Redis so repeated runs
// against the same dataset can skip network I/O while the entry is fresh.
//
// The cache is opt-in: the source client works without one. Entries carry
// the raw response body exactly as received; decoding still happens in
// the source client on every read.
package cache

import (
	"time"
)

// CacheEntry is a cached page body.
type CacheEntry struct {
	// Data is the raw response body.
	Data []byte `json:"data"`

	// Strategy is the pagination parameter strategy that produced Data.
	Strategy string `json:"strategy"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was written.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
