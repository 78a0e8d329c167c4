package listing

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for listing fetches.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_fetches_total",
		Help: "Total listing page fetches by outcome",
	}, []string{"outcome"}) // "ok", "empty", "failed"

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listing_fetch_duration_seconds",
		Help:    "Listing page fetch duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// Fetcher issues page requests against a Source without blocking the caller.
// It does not deduplicate overlapping calls; superseding stale results is
// the caller's job.
type Fetcher struct {
	source  Source
	perPage int
	logger  zerolog.Logger
}

// NewFetcher creates a Fetcher. perPage <= 0 selects DefaultPerPage.
func NewFetcher(source Source, perPage int, logger zerolog.Logger) *Fetcher {
	if source == nil {
		panic("listing source cannot be nil")
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Fetcher{
		source:  source,
		perPage: perPage,
		logger:  logger,
	}
}

// PerPage returns the page size requested from the source.
func (f *Fetcher) PerPage() int {
	return f.perPage
}

// Fetch starts retrieving the page selected by filter and returns at once.
// The returned channel receives exactly one result. A failed request
// resolves to EmptyResult.
func (f *Fetcher) Fetch(ctx context.Context, filter Filter) <-chan PageResult {
	out := make(chan PageResult, 1)
	go func() {
		out <- f.FetchNow(ctx, filter)
	}()
	return out
}

// FetchNow performs the request on the calling goroutine. Hosts use it for
// the first page they render before a store exists.
func (f *Fetcher) FetchNow(ctx context.Context, filter Filter) PageResult {
	start := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
	}()

	q := QueryFor(filter, f.perPage)
	result, err := f.source.FetchItems(ctx, q)
	if err != nil {
		fetchesTotal.WithLabelValues("failed").Inc()
		f.logger.Warn().
			Err(err).
			Str("category", q.Category).
			Int("page", q.Page).
			Msg("Listing fetch failed, showing empty result")
		return EmptyResult()
	}

	if result.Items == nil {
		result.Items = []Item{}
	}
	if result.PageCount < 0 {
		result.PageCount = 0
	}

	if result.IsEmpty() {
		fetchesTotal.WithLabelValues("empty").Inc()
	} else {
		fetchesTotal.WithLabelValues("ok").Inc()
	}

	f.logger.Debug().
		Str("category", q.Category).
		Int("page", q.Page).
		Int("items", len(result.Items)).
		Int("page_count", result.PageCount).
		Dur("duration", time.Since(start)).
		Msg("Listing page fetched")

	return result
}
