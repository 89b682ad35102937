package analysis

import (
	"context"
	"time"
)

// Options selects limits and thresholds for Run.
type Options struct {
	// RankingLimit caps the savings ranking. <= 0 returns every pair.
	RankingLimit int

	// HighImpactLimit caps the high-impact list. <= 0 returns every pair.
	HighImpactLimit int

	Thresholds Thresholds

	// MinDrugs is the smallest manufacturer group kept.
	MinDrugs int
}

// DefaultOptions returns the top-20 ranking, the default thresholds and a
// minimum of three drugs per manufacturer group.
func DefaultOptions() Options {
	return Options{
		RankingLimit:    DefaultRankingLimit,
		HighImpactLimit: 0,
		Thresholds:      DefaultThresholds(),
		MinDrugs:        DefaultMinDrugs,
	}
}

// Report holds the result of every query.
type Report struct {
	CategorySummary []CategoryStats     `json:"category_summary"`
	SavingsRanking  []SavingsRecord     `json:"savings_ranking"`
	HighImpact      []SavingsRecord     `json:"high_impact"`
	Rollup          Rollup              `json:"rollup"`
	Manufacturers   []ManufacturerStats `json:"manufacturers"`
}

// Run executes the five queries in order and stops at the first error.
func (a *Analyzer) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	var (
		r   Report
		err error
	)

	if r.CategorySummary, err = a.CategorySummary(ctx); err != nil {
		return nil, err
	}
	if r.SavingsRanking, err = a.SavingsRanking(ctx, opts.RankingLimit); err != nil {
		return nil, err
	}
	if r.HighImpact, err = a.HighImpact(ctx, opts.Thresholds, opts.HighImpactLimit); err != nil {
		return nil, err
	}
	if r.Rollup, err = a.Rollup(ctx); err != nil {
		return nil, err
	}
	if r.Manufacturers, err = a.ManufacturerBreakdown(ctx, opts.MinDrugs); err != nil {
		return nil, err
	}

	event := a.logger.Info().
		Int("categories", len(r.CategorySummary)).
		Int("ranked_pairs", len(r.SavingsRanking)).
		Int("high_impact", len(r.HighImpact)).
		Int("rollup_pairs", r.Rollup.Pairs).
		Float64("potential_savings", r.Rollup.PotentialSavings).
		Int("manufacturer_groups", len(r.Manufacturers)).
		Dur("duration", time.Since(start))
	if r.Rollup.PercentSavings != nil {
		event = event.Float64("percent_savings", *r.Rollup.PercentSavings)
	}
	event.Msg("Analysis complete")

	if r.Rollup.Pairs == 0 {
		a.logger.Warn().Msg("No complete brand/generic pairs with positive savings")
	}

	return &r, nil
}
