// Package normalize maps raw source rows onto the canonical record,
// coercing numeric fields and classifying each row as brand or generic.
package normalize

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/partd-savings/pkg/dataset"
	"github.com/Sternrassler/partd-savings/pkg/logging"
)

var (
	rowsNormalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partd_rows_normalized_total",
		Help: "Total raw rows processed by outcome (admitted, dropped)",
	}, []string{"outcome"})

	metricNullsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partd_metric_nulls_total",
		Help: "Total admitted rows with a null metric by canonical column",
	}, []string{"column"})
)

// Stats summarizes one Normalize call.
type Stats struct {
	Input    int
	Admitted int
	Dropped  int

	// MissingBrand and MissingGeneric count dropped rows by cause. A row
	// missing both is counted under MissingBrand.
	MissingBrand   int
	MissingGeneric int

	// Categories counts admitted rows per category.
	Categories map[dataset.Category]int

	// Nulls counts admitted rows whose metric column is null.
	Nulls map[string]int

	// AliasHits counts which source key supplied each canonical column.
	AliasHits map[string]map[string]int

	Duration time.Duration
}

// Normalizer converts raw rows to canonical records.
type Normalizer struct {
	year    int
	aliases map[string][]string
	logger  zerolog.Logger
}

// NewNormalizer creates a normalizer preferring columns for year.
// A year <= 0 selects DefaultYear.
func NewNormalizer(year int) *Normalizer {
	if year <= 0 {
		year = DefaultYear
	}
	return &Normalizer{
		year:    year,
		aliases: Aliases(year),
		logger:  logging.NewLogger(logging.ComponentNormalize),
	}
}

// Year returns the preferred data year.
func (n *Normalizer) Year() int {
	return n.year
}

// Normalize maps every raw row. Rows without a brand or generic name are
// dropped; every other row is admitted with unmappable metrics left nil.
// Output order follows input order.
func (n *Normalizer) Normalize(raw []dataset.RawRecord) ([]dataset.Record, Stats) {
	start := time.Now()
	stats := Stats{
		Input:      len(raw),
		Categories: make(map[dataset.Category]int),
		Nulls:      make(map[string]int),
		AliasHits:  make(map[string]map[string]int),
	}

	records := make([]dataset.Record, 0, len(raw))
	for _, r := range raw {
		rec, ok := n.normalizeRow(r, &stats)
		if !ok {
			stats.Dropped++
			continue
		}
		stats.Admitted++
		stats.Categories[rec.Category]++
		records = append(records, rec)
	}

	stats.Duration = time.Since(start)
	rowsNormalizedTotal.WithLabelValues("admitted").Add(float64(stats.Admitted))
	rowsNormalizedTotal.WithLabelValues("dropped").Add(float64(stats.Dropped))
	for col, count := range stats.Nulls {
		metricNullsTotal.WithLabelValues(col).Add(float64(count))
	}

	n.logger.Info().
		Int("input", stats.Input).
		Int("admitted", stats.Admitted).
		Int("dropped", stats.Dropped).
		Int("brand", stats.Categories[dataset.CategoryBrand]).
		Int("generic", stats.Categories[dataset.CategoryGeneric]).
		Int("year", n.year).
		Dur("duration", stats.Duration).
		Msg("Rows normalized")

	if stats.Input > 0 && stats.Admitted == 0 {
		n.logger.Warn().Msg("No rows admitted, source columns may not match any alias")
	}

	return records, stats
}

func (n *Normalizer) normalizeRow(r dataset.RawRecord, stats *Stats) (dataset.Record, bool) {
	brand := Label(n.field(r, dataset.ColBrandName, stats))
	generic := Label(n.field(r, dataset.ColGenericName, stats))

	switch {
	case brand == "":
		stats.MissingBrand++
		return dataset.Record{}, false
	case generic == "":
		stats.MissingGeneric++
		return dataset.Record{}, false
	}

	rec := dataset.Record{
		BrandName:    brand,
		GenericName:  groupKey(generic),
		Category:     Classify(brand, generic),
		Manufacturer: Label(n.field(r, dataset.ColManufacturer, stats)),
	}

	for _, col := range dataset.MetricColumns {
		v := ParseAmount(n.field(r, col, stats))
		if v == nil {
			stats.Nulls[col]++
		}
		rec.SetMetric(col, v)
	}

	return rec, true
}

// field returns the raw value for a canonical column and records which
// alias supplied it.
func (n *Normalizer) field(r dataset.RawRecord, col string, stats *Stats) any {
	v, key, ok := lookup(r, n.aliases[col])
	if !ok {
		return nil
	}
	hits := stats.AliasHits[col]
	if hits == nil {
		hits = make(map[string]int)
		stats.AliasHits[col] = hits
	}
	hits[key]++
	return v
}
