package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "partd:page"

// CacheKey identifies one page request: the endpoint plus the exact query
// parameters a strategy sent.
type CacheKey struct {
	Endpoint    string
	QueryParams url.Values
}

// String returns a deterministic key, e.g.
//
//	partd:page:data-api/v1/dataset/abc/data:offset=0:size=5000
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		names := make([]string, 0, len(k.QueryParams))
		for name := range k.QueryParams {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.QueryParams.Get(name)))
		}
	}

	return strings.Join(parts, ":")
}
