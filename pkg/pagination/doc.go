// Package pagination computes page-control sequences for listing views and
// walks every page of a listing in parallel.
//
// Sequence is a pure function: it returns the bounded, ellipsis-truncated
// list of page tokens for the current page, and always keeps the first and
// last page visible.
//
//	pagination.Sequence(8, 16) // 1 2 … 7 8 9 … 15 16
//
// BatchFetcher warms caches (and feeds sitemap style consumers) by walking
// all pages of one filtered listing:
//
//	fetcher := pagination.NewBatchFetcher(source, pagination.DefaultConfig())
//	pages, err := fetcher.FetchAllPages(ctx, listing.Filter{Category: "nextjs"})
//
// The batch fetcher:
//   - Fetches the first page to learn the page count
//   - Spawns a worker pool (default 4 workers)
//   - Distributes the remaining pages across workers
//   - Returns partial results when a worker fails
package pagination
