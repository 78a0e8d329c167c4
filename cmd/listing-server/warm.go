package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/content-listing/pkg/listing"
	"github.com/Sternrassler/content-listing/pkg/pagination"
)

// warmCache walks every page of the listed categories ("" = unfiltered) so
// their responses are cached before the first visitor arrives.
func warmCache(ctx context.Context, source listing.Source, perPage int, categories []string, logger zerolog.Logger) map[string]int {
	cfg := pagination.DefaultConfig()
	cfg.PerPage = perPage
	bf := pagination.NewBatchFetcher(source, cfg)

	warmed := make(map[string]int, len(categories))
	for _, category := range categories {
		start := time.Now()
		pages, err := bf.FetchAllPages(ctx, listing.Filter{Category: category})
		warmed[category] = len(pages)

		event := logger.Info()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("category", category).
			Int("pages", len(pages)).
			Dur("duration", time.Since(start)).
			Msg("Cache warmed")

		if ctx.Err() != nil {
			break
		}
	}
	return warmed
}
