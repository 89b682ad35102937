// Package ratelimit paces successive requests against the source API.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var pacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "partd_pacer_wait_seconds",
	Help:    "Time spent waiting between successive source requests",
	Buckets: []float64{0, 0.1, 0.25, 0.5, 1, 2, 5},
})

// DefaultInterval is the fixed delay enforced between successive requests.
const DefaultInterval = 500 * time.Millisecond

// Pacer enforces a minimum interval between successive calls to Wait.
// The first call never blocks.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
	logger   zerolog.Logger
}

// NewPacer creates a pacer. An interval <= 0 disables pacing.
func NewPacer(interval time.Duration, logger zerolog.Logger) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		logger:   logger,
	}
}

// Interval returns the configured delay.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until the next request may be issued, or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}

	waited := time.Since(start)
	pacerWaitSeconds.Observe(waited.Seconds())
	if waited > 0 && p.interval > 0 {
		p.logger.Debug().Dur("waited", waited).Msg("Paced request")
	}
	return nil
}
