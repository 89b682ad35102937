// Package metrics exposes the Prometheus registry shared by the pipeline
// packages and dumps it for batch runs.
//
// Collectors live next to the code they measure (source, cache,
// pagination, ratelimit, normalize) and register themselves through
// promauto on the default registerer.
//
// Source (pkg/source):
//   - partd_source_requests_total{strategy, status} (Counter)
//   - partd_source_request_duration_seconds{strategy} (Histogram)
//   - partd_source_errors_total{class} (Counter)
//   - partd_source_fallbacks_total{strategy} (Counter): strategy failed, next one tried
//   - partd_source_exhausted_total (Counter): every strategy failed for a page
//
// Cache (pkg/cache):
//   - partd_cache_hits_total, partd_cache_misses_total (Counter)
//   - partd_cache_errors_total{operation} (Counter)
//
// Pagination (pkg/pagination):
//   - partd_pages_fetched_total (Counter)
//   - partd_rows_fetched_total (Counter)
//   - partd_pagination_stops_total{reason} (Counter)
//
// Pacing (pkg/ratelimit):
//   - partd_pacer_wait_seconds (Histogram)
//
// Normalization (pkg/normalize):
//   - partd_rows_normalized_total{outcome} (Counter): admitted or dropped
//   - partd_metric_nulls_total{column} (Counter)
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registerer the pipeline packages register into.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every gathered metric in the text exposition format
// to path, for pickup by node_exporter's textfile collector. Parent
// directories are created as needed.
func WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("metrics textfile path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
