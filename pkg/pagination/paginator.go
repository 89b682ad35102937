package pagination

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/partd-savings/pkg/dataset"
	"github.com/Sternrassler/partd-savings/pkg/logging"
	"github.com/Sternrassler/partd-savings/pkg/source"
)

var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partd_pages_fetched_total",
		Help: "Total number of non-empty pages appended to the raw table",
	})

	rowsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partd_rows_fetched_total",
		Help: "Total number of raw rows fetched",
	})

	paginationStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partd_pagination_stops_total",
		Help: "Total number of pagination runs by stop reason",
	}, []string{"reason"})
)

// StopReason records why the loop ended.
type StopReason string

const (
	StopEmptyPage     StopReason = "empty_page"
	StopShortPage     StopReason = "short_page"
	StopTargetReached StopReason = "target_reached"
	StopCancelled     StopReason = "cancelled"
)

// PageFetcher fetches one page. *source.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageSize, offset int) source.Page
}

// Pacer delays successive requests. *ratelimit.Pacer implements it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Stats summarizes one FetchAll run.
type Stats struct {
	// Requests counts FetchPage calls.
	Requests int

	// Pages counts non-empty pages appended.
	Pages int

	// Rows is the length of the returned table.
	Rows int

	// StopReason is why the loop ended.
	StopReason StopReason

	// Strategies counts pages per successful strategy.
	Strategies map[string]int

	// CachedPages counts pages served from the page cache.
	CachedPages int

	// LastErr is the failure behind a terminal empty page, if any.
	LastErr error

	Duration time.Duration
}

// Empty reports the soft failure of fetching no rows at all.
func (s Stats) Empty() bool {
	return s.Rows == 0
}

// Paginator runs the sequential fetch loop.
type Paginator struct {
	fetcher PageFetcher
	pacer   Pacer
	logger  zerolog.Logger
}

// NewPaginator creates a paginator. A nil pacer disables pacing.
func NewPaginator(fetcher PageFetcher, pacer Pacer) *Paginator {
	if fetcher == nil {
		panic("page fetcher cannot be nil")
	}
	return &Paginator{
		fetcher: fetcher,
		pacer:   pacer,
		logger:  logging.NewLogger(logging.ComponentPagination),
	}
}

// FetchAll fetches pages of pageSize rows from offset 0 until a stop
// condition holds. A target <= 0 means no target. The result keeps source
// row order and may exceed target by up to one page. FetchAll never fails;
// callers check Stats.Empty.
func (p *Paginator) FetchAll(ctx context.Context, pageSize, target int) ([]dataset.RawRecord, Stats) {
	start := time.Now()
	pageSize = clampPageSize(pageSize)

	stats := Stats{Strategies: make(map[string]int)}
	var rows []dataset.RawRecord
	offset := 0

	p.logger.Info().
		Int("page_size", pageSize).
		Int("target", target).
		Msg("Starting paginated fetch")

	for {
		if p.pacer != nil {
			if err := p.pacer.Wait(ctx); err != nil {
				stats.StopReason = StopCancelled
				stats.LastErr = err
				break
			}
		}

		page := p.fetcher.FetchPage(ctx, pageSize, offset)
		stats.Requests++

		n := page.Len()
		if n == 0 {
			if ctx.Err() != nil {
				stats.StopReason = StopCancelled
				stats.LastErr = ctx.Err()
			} else {
				stats.StopReason = StopEmptyPage
				stats.LastErr = page.Err()
			}
			if stats.LastErr != nil {
				p.logger.Warn().
					Err(stats.LastErr).
					Int("offset", offset).
					Msg("Pagination ended on failed page")
			}
			break
		}

		rows = append(rows, page.Records...)
		offset += n
		stats.Pages++
		stats.Strategies[page.Strategy]++
		if page.FromCache {
			stats.CachedPages++
		}
		pagesFetchedTotal.Inc()
		rowsFetchedTotal.Add(float64(n))

		p.logger.Info().
			Int("offset", offset-n).
			Int("rows", n).
			Int("total", len(rows)).
			Str("strategy", page.Strategy).
			Bool("cached", page.FromCache).
			Msg("Page fetched")

		if n < effectivePageSize(page, pageSize) {
			stats.StopReason = StopShortPage
			break
		}
		if target > 0 && len(rows) >= target {
			stats.StopReason = StopTargetReached
			break
		}
	}

	stats.Rows = len(rows)
	stats.Duration = time.Since(start)
	paginationStopsTotal.WithLabelValues(string(stats.StopReason)).Inc()

	event := p.logger.Info()
	if stats.Empty() {
		event = p.logger.Warn()
	}
	event.
		Int("requests", stats.Requests).
		Int("pages", stats.Pages).
		Int("rows", stats.Rows).
		Str("stop_reason", string(stats.StopReason)).
		Dur("duration", stats.Duration).
		Msg("Paginated fetch finished")

	return rows, stats
}

func clampPageSize(pageSize int) int {
	switch {
	case pageSize <= 0:
		return 1
	case pageSize > source.MaxPageSize:
		return source.MaxPageSize
	default:
		return pageSize
	}
}

// effectivePageSize is the size the fetcher actually requested, which may
// be below the requested one when the fetcher caps it further.
func effectivePageSize(page source.Page, requested int) int {
	if page.PageSize > 0 && page.PageSize < requested {
		return page.PageSize
	}
	return requested
}
