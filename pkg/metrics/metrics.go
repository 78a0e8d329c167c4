// Package metrics exposes the Prometheus registry shared by the listing
// engine. Collectors are defined with promauto in the packages that
// update them (listing, store, cache, ratelimit, contentapi).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry.
// All metrics are registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the default Prometheus gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Listing Metrics (pkg/listing, pkg/store):
//   - listing_fetches_total{outcome} (Counter): page fetches by outcome (ok, empty, failed)
//   - listing_fetch_duration_seconds (Histogram): page fetch duration
//   - listing_transitions_total{event} (Counter): filter state transitions by event
//   - listing_stale_responses_total (Counter): fetch results discarded as superseded
//
// Cache Metrics (pkg/cache):
//   - listing_cache_hits_total{freshness} (Counter): hits by freshness (fresh, stale)
//   - listing_cache_misses_total (Counter): cache misses
//   - listing_cache_stored_bytes_total (Counter): bytes written to the cache
//   - listing_cache_conditional_requests_total (Counter): requests sent with If-None-Match
//   - listing_cache_not_modified_total (Counter): 304 Not Modified responses
//   - listing_cache_errors_total{operation} (Counter): cache operation errors
//
// Content Service Metrics (pkg/contentapi, pkg/ratelimit):
//   - content_api_requests_total{status} (Counter): requests by HTTP status, "cache", "rate_limited" or "network_error"
//   - content_api_request_duration_seconds (Histogram): request duration
//   - content_api_errors_total{class} (Counter): errors by class (client, server, rate_limit, network, decode)
//   - content_api_quota_remaining (Gauge): requests left in the quota window
//   - content_api_quota_blocks_total (Counter): requests blocked by the quota tracker
//   - content_api_quota_throttles_total (Counter): requests delayed by the quota tracker
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(listing_cache_hits_total[5m])) /
//   (sum(rate(listing_cache_hits_total[5m])) + sum(rate(listing_cache_misses_total[5m])))
//
//   # Share of pages rendered empty because the fetch failed
//   rate(listing_fetches_total{outcome="failed"}[5m]) / rate(listing_fetches_total[5m])
//
//   # Superseded fetches per second
//   rate(listing_stale_responses_total[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(listing_fetch_duration_seconds_bucket[5m]))
