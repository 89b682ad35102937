package source

import (
	"net/url"
	"strconv"
)

// ParamStrategy is one naming convention for pagination query parameters.
// Strategies are tried in order until one returns a usable page.
type ParamStrategy struct {
	// Name identifies the strategy in logs, metrics and cache entries.
	Name string

	// SizeParam carries the page size.
	SizeParam string

	// OffsetParam carries the position: a zero-based row offset, or a
	// one-based page number when PageNumbered is set.
	OffsetParam string

	// PageNumbered converts the row offset into a one-based page index.
	PageNumbered bool
}

// Apply sets the strategy's parameters on q.
func (s ParamStrategy) Apply(q url.Values, pageSize, offset int) {
	q.Set(s.SizeParam, strconv.Itoa(pageSize))
	if s.PageNumbered {
		q.Set(s.OffsetParam, strconv.Itoa(offset/pageSize+1))
		return
	}
	q.Set(s.OffsetParam, strconv.Itoa(offset))
}

// Built-in strategies, in default order.
var (
	StrategySizeOffset = ParamStrategy{Name: "size_offset", SizeParam: "size", OffsetParam: "offset"}
	StrategyLimitSkip  = ParamStrategy{Name: "limit_skip", SizeParam: "limit", OffsetParam: "skip"}
	StrategySocrata    = ParamStrategy{Name: "socrata", SizeParam: "$limit", OffsetParam: "$offset"}
	StrategyPerPage    = ParamStrategy{Name: "per_page", SizeParam: "per_page", OffsetParam: "page", PageNumbered: true}
)

// DefaultStrategies returns the primary strategy followed by its fallbacks.
func DefaultStrategies() []ParamStrategy {
	return []ParamStrategy{
		StrategySizeOffset,
		StrategyLimitSkip,
		StrategySocrata,
		StrategyPerPage,
	}
}
