package source

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/partd-savings/pkg/dataset"
)

var (
	sourceFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partd_source_fallbacks_total",
		Help: "Total number of times a strategy failed and the next one was tried",
	}, []string{"strategy"})

	sourceExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partd_source_exhausted_total",
		Help: "Total number of page fetches where every strategy failed",
	})
)

// attemptFunc fetches one page with one strategy.
type attemptFunc func(ctx context.Context, s ParamStrategy) (records []dataset.RawRecord, fromCache bool, err *SourceError)

// withFallback tries each strategy in order and returns the first usable
// page. Failures are collected in order. Context cancellation stops the
// walk without trying the remaining strategies.
func withFallback(ctx context.Context, logger zerolog.Logger, strategies []ParamStrategy, fn attemptFunc) Page {
	var page Page

	for i, s := range strategies {
		if ctx.Err() != nil {
			page.Failures = append(page.Failures, &SourceError{
				Strategy: s.Name,
				Class:    ErrorClassNetwork,
				Message:  "context done before attempt",
				Err:      ctx.Err(),
			})
			break
		}

		records, fromCache, failure := fn(ctx, s)
		if failure == nil {
			if i > 0 {
				logger.Info().
					Str("strategy", s.Name).
					Int("attempt", i+1).
					Msg("Page fetched after fallback")
			}
			page.Records = records
			page.Strategy = s.Name
			page.FromCache = fromCache
			return page
		}

		page.Failures = append(page.Failures, failure)

		if i < len(strategies)-1 {
			sourceFallbacksTotal.WithLabelValues(s.Name).Inc()
			logger.Warn().
				Str("strategy", s.Name).
				Str("next_strategy", strategies[i+1].Name).
				Str("error_class", string(failure.Class)).
				Int("status", failure.StatusCode).
				Msg("Strategy failed, falling back")
		}
	}

	sourceExhaustedTotal.Inc()
	logger.Error().
		Int("strategies", len(strategies)).
		Msg("All strategies failed, returning empty page")
	return page
}
