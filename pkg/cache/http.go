package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL applies when the response carries no usable freshness headers.
const DefaultTTL = 1 * time.Hour

// ExpiresFromHeaders derives an expiry time for a response.
// Cache-Control max-age wins over Expires; no-store yields now (not cached);
// missing or unparsable headers fall back to now + fallback.
func ExpiresFromHeaders(headers http.Header, fallback time.Duration) time.Time {
	now := time.Now()
	if fallback <= 0 {
		fallback = DefaultTTL
	}

	if cc := headers.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.ToLower(strings.TrimSpace(directive))
			if directive == "no-store" || directive == "no-cache" {
				return now
			}
			if v, ok := strings.CutPrefix(directive, "max-age="); ok {
				if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
					return now.Add(time.Duration(secs) * time.Second)
				}
			}
		}
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(fallback)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(fallback)
	}
	if expires.Before(now) {
		return now
	}
	return expires
}

// NewEntry builds a cache entry for a successful page body.
func NewEntry(body []byte, strategy string, headers http.Header, fallback time.Duration) *CacheEntry {
	return &CacheEntry{
		Data:     body,
		Strategy: strategy,
		Expires:  ExpiresFromHeaders(headers, fallback),
		CachedAt: time.Now(),
	}
}
