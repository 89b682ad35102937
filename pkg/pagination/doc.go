// Package pagination drives a page fetcher across successive offsets and
// concatenates the pages into one raw table.
//
// The source does not report a total count, so the loop ends on the first
// of these, checked in order after every request:
//   - an empty page (end of data, or every strategy failed)
//   - a page shorter than the requested size (consumed, then stop)
//   - the running total reaching the advisory target
//
// Requests are strictly sequential and paced by a ratelimit.Pacer.
//
// Example usage:
//
//	p := pagination.NewPaginator(sourceClient, ratelimit.NewPacer(500*time.Millisecond, logger))
//	rows, stats := p.FetchAll(ctx, 5000, 0)
//	if stats.Empty() {
//		// soft failure: nothing was fetched
//	}
package pagination
