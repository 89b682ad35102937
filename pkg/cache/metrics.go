package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts pages served from Redis.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partd_cache_hits_total",
		Help: "Total number of page cache hits",
	})

	// CacheMisses counts lookups that found no fresh entry.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partd_cache_misses_total",
		Help: "Total number of page cache misses",
	})

	// CacheErrors counts Redis or encoding failures by operation.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partd_cache_errors_total",
		Help: "Total number of page cache operation errors",
	}, []string{"operation"}) // get, set, delete, scan
)
