package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/content-listing/pkg/listing"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int

	// Timeout per page fetch.
	Timeout time.Duration

	// PerPage is the page size requested from the source.
	PerPage int

	// MaxPages caps how many pages are walked (0 = no cap).
	MaxPages int
}

// DefaultConfig returns a configuration gentle enough for a content service.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        10 * time.Second,
		PerPage:        listing.DefaultPerPage,
		MaxPages:       200,
	}
}

// PageResult is the outcome of fetching one page of the walk.
type PageResult struct {
	PageNumber int
	Result     listing.PageResult
	Error      error
}

// BatchFetcher fetches all pages of a filtered listing with a worker pool.
type BatchFetcher struct {
	source listing.Source
	config Config
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(source listing.Source, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PerPage <= 0 {
		config.PerPage = defaults.PerPage
	}

	return &BatchFetcher{
		source: source,
		config: config,
	}
}

// FetchAllPages fetches every page of the listing selected by filter.
// filter.Page is ignored. Returns a map of page number to result; on a
// worker failure the pages fetched so far are returned with the error.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context, filter listing.Filter) (map[int]listing.PageResult, error) {
	start := time.Now()
	filter = filter.Normalize()
	filter.Page = 1

	first, err := bf.fetch(ctx, filter, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}

	totalPages := first.PageCount
	if bf.config.MaxPages > 0 && totalPages > bf.config.MaxPages {
		log.Warn().
			Str("category", filter.Category).
			Int("page_count", totalPages).
			Int("max_pages", bf.config.MaxPages).
			Msg("Page walk capped")
		totalPages = bf.config.MaxPages
	}

	log.Info().
		Str("category", filter.Category).
		Int("total_pages", totalPages).
		Msg("Starting parallel page walk")

	results := map[int]listing.PageResult{1: first}
	if totalPages <= 1 {
		return results, nil
	}

	pageQueue := make(chan int, totalPages)
	pageResults := make(chan PageResult, totalPages)
	errs := make(chan error, bf.config.MaxConcurrency)

	for page := 2; page <= totalPages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(ctx, filter, pageQueue, pageResults, errs, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
		close(errs)
	}()

	for result := range pageResults {
		results[result.PageNumber] = result.Result
	}

	if err, ok := <-errs; ok && err != nil {
		log.Warn().
			Err(err).
			Int("fetched_pages", len(results)).
			Int("total_pages", totalPages).
			Msg("Worker error - returning partial results")
		return results, fmt.Errorf("page walk (partial data: %d/%d pages): %w", len(results), totalPages, err)
	}

	log.Info().
		Str("category", filter.Category).
		Int("pages", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Page walk complete")

	return results, nil
}

// worker processes pages from the queue until it drains or a fetch fails.
func (bf *BatchFetcher) worker(ctx context.Context, filter listing.Filter, pageQueue <-chan int, results chan<- PageResult, errs chan<- error, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		if ctx.Err() != nil {
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		result, err := bf.fetch(ctx, filter, pageNum)
		if err != nil {
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")

			select {
			case errs <- err:
			default:
			}
			return
		}

		results <- PageResult{PageNumber: pageNum, Result: result}
		pagesProcessed++
	}
}

func (bf *BatchFetcher) fetch(ctx context.Context, filter listing.Filter, page int) (listing.PageResult, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	filter.Page = page
	return bf.source.FetchItems(pageCtx, listing.QueryFor(filter, bf.config.PerPage))
}
