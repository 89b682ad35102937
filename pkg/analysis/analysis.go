// Package analysis runs the comparative queries over the canonical table:
// category summary, savings ranking, high-impact filter, global roll-up and
// manufacturer breakdown. Every query is read-only and treats a null metric
// as absent, never as zero.
package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/partd-savings/pkg/dataset"
	"github.com/Sternrassler/partd-savings/pkg/logging"
)

// Defaults for the high-impact filter and manufacturer breakdown.
const (
	DefaultMinClaims         = 10000
	DefaultMinCostDifference = 50
	DefaultMinDrugs          = 3
	DefaultRankingLimit      = 20
)

// Querier is the read side of *sql.DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CategoryStats is one row of the category summary. Sums and means are
// nil when every contributing value was null.
type CategoryStats struct {
	Category           dataset.Category `json:"category"`
	Count              int              `json:"drug_count"`
	PercentOfTotal     float64          `json:"percent_of_total"`
	TotalSpending      *float64         `json:"total_spending"`
	TotalClaims        *float64         `json:"total_claims"`
	TotalBeneficiaries *float64         `json:"total_beneficiaries"`
	AvgSpendPerClaim   *float64         `json:"avg_spend_per_claim"`
	AvgSpendPerUnit    *float64         `json:"avg_spend_per_unit"`
}

// SavingsRecord compares the brand and generic side of one complete pair.
type SavingsRecord struct {
	GenericName      string  `json:"generic_name"`
	BrandAvgCost     float64 `json:"brand_avg_cost"`
	GenericAvgCost   float64 `json:"generic_avg_cost"`
	CostDifference   float64 `json:"cost_difference"`
	PercentSavings   float64 `json:"percent_savings"`
	BrandClaims      float64 `json:"brand_claims"`
	PotentialSavings float64 `json:"potential_savings"`
}

// Thresholds gate the high-impact filter. Both comparisons are strict.
type Thresholds struct {
	MinClaims         float64
	MinCostDifference float64
}

// DefaultThresholds returns 10,000 brand claims and a cost difference of 50.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinClaims:         DefaultMinClaims,
		MinCostDifference: DefaultMinCostDifference,
	}
}

// Rollup totals every pair of the savings ranking.
type Rollup struct {
	Pairs            int     `json:"pairs"`
	BrandClaims      float64 `json:"brand_claims"`
	CurrentSpending  float64 `json:"current_spending"`
	GenericSpending  float64 `json:"generic_spending"`
	PotentialSavings float64 `json:"potential_savings"`

	// PercentSavings is nil when CurrentSpending is zero.
	PercentSavings *float64 `json:"percent_savings"`
}

// ManufacturerStats is one (manufacturer, category) group.
type ManufacturerStats struct {
	Manufacturer     string           `json:"manufacturer"`
	Category         dataset.Category `json:"category"`
	Count            int              `json:"drug_count"`
	AvgSpendPerClaim *float64         `json:"avg_spend_per_claim"`
	TotalSpending    *float64         `json:"total_spending"`
	TotalClaims      *float64         `json:"total_claims"`
}

// Analyzer runs the queries against a loaded store.
type Analyzer struct {
	db     Querier
	logger zerolog.Logger
}

// NewAnalyzer creates an analyzer over db.
func NewAnalyzer(db Querier) *Analyzer {
	if db == nil {
		panic("querier cannot be nil")
	}
	return &Analyzer{
		db:     db,
		logger: logging.NewLogger(logging.ComponentAnalysis),
	}
}

// CategorySummary aggregates per category, ordered by summed spending.
func (a *Analyzer) CategorySummary(ctx context.Context) ([]CategoryStats, error) {
	defer a.timed("category_summary")()

	rows, err := a.db.QueryContext(ctx, categorySummaryQuery)
	if err != nil {
		return nil, fmt.Errorf("category summary: %w", err)
	}
	defer rows.Close()

	out := []CategoryStats{}
	for rows.Next() {
		var (
			s        CategoryStats
			category string
			sums     [5]sql.NullFloat64
		)
		if err := rows.Scan(&category, &s.Count, &s.PercentOfTotal,
			&sums[0], &sums[1], &sums[2], &sums[3], &sums[4]); err != nil {
			return nil, fmt.Errorf("scan category summary: %w", err)
		}
		s.Category = dataset.Category(category)
		s.TotalSpending = floatPtr(sums[0])
		s.TotalClaims = floatPtr(sums[1])
		s.TotalBeneficiaries = floatPtr(sums[2])
		s.AvgSpendPerClaim = floatPtr(sums[3])
		s.AvgSpendPerUnit = floatPtr(sums[4])
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("category summary: %w", err)
	}
	return out, nil
}

// SavingsRanking returns complete pairs with a positive cost difference,
// by potential savings descending, ties by generic name. A limit <= 0
// returns every pair.
func (a *Analyzer) SavingsRanking(ctx context.Context, limit int) ([]SavingsRecord, error) {
	defer a.timed("savings_ranking")()

	out, err := a.querySavings(ctx, savingsRankingQuery, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("savings ranking: %w", err)
	}
	return out, nil
}

// HighImpact narrows the savings ranking to pairs whose brand claims and
// cost difference both exceed the thresholds.
func (a *Analyzer) HighImpact(ctx context.Context, th Thresholds, limit int) ([]SavingsRecord, error) {
	defer a.timed("high_impact")()

	out, err := a.querySavings(ctx, highImpactQuery, th.MinClaims, th.MinCostDifference, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("high impact: %w", err)
	}
	return out, nil
}

// Rollup totals the unfiltered savings ranking.
func (a *Analyzer) Rollup(ctx context.Context) (Rollup, error) {
	defer a.timed("rollup")()

	var r Rollup
	err := a.db.QueryRowContext(ctx, rollupQuery).Scan(
		&r.Pairs, &r.BrandClaims, &r.CurrentSpending, &r.GenericSpending, &r.PotentialSavings)
	if err != nil {
		return Rollup{}, fmt.Errorf("rollup: %w", err)
	}
	if r.CurrentSpending != 0 {
		pct := 100 * r.PotentialSavings / r.CurrentSpending
		r.PercentSavings = &pct
	}
	return r, nil
}

// ManufacturerBreakdown aggregates per (manufacturer, category) over rows
// with a manufacturer, keeping groups of at least minDrugs rows.
func (a *Analyzer) ManufacturerBreakdown(ctx context.Context, minDrugs int) ([]ManufacturerStats, error) {
	defer a.timed("manufacturers")()

	rows, err := a.db.QueryContext(ctx, manufacturerQuery, minDrugs)
	if err != nil {
		return nil, fmt.Errorf("manufacturer breakdown: %w", err)
	}
	defer rows.Close()

	out := []ManufacturerStats{}
	for rows.Next() {
		var (
			m        ManufacturerStats
			category string
			vals     [3]sql.NullFloat64
		)
		if err := rows.Scan(&m.Manufacturer, &category, &m.Count, &vals[0], &vals[1], &vals[2]); err != nil {
			return nil, fmt.Errorf("scan manufacturer breakdown: %w", err)
		}
		m.Category = dataset.Category(category)
		m.AvgSpendPerClaim = floatPtr(vals[0])
		m.TotalSpending = floatPtr(vals[1])
		m.TotalClaims = floatPtr(vals[2])
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manufacturer breakdown: %w", err)
	}
	return out, nil
}

func (a *Analyzer) querySavings(ctx context.Context, query string, args ...any) ([]SavingsRecord, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SavingsRecord{}
	for rows.Next() {
		var s SavingsRecord
		if err := rows.Scan(&s.GenericName, &s.BrandAvgCost, &s.GenericAvgCost, &s.CostDifference,
			&s.PercentSavings, &s.BrandClaims, &s.PotentialSavings); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// timed logs the duration of a query at debug level.
func (a *Analyzer) timed(query string) func() {
	start := time.Now()
	return func() {
		a.logger.Debug().
			Str("query", query).
			Dur("duration", time.Since(start)).
			Msg("Query finished")
	}
}

// sqlLimit maps "no limit" onto SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
