// Package contentapi is the HTTP client for the content query service. It
// implements listing.Source with response caching, ETag revalidation,
// quota tracking and outbound request pacing.
package contentapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/content-listing/pkg/cache"
	"github.com/Sternrassler/content-listing/pkg/listing"
	"github.com/Sternrassler/content-listing/pkg/logging"
	"github.com/Sternrassler/content-listing/pkg/ratelimit"
)

// ItemsResource is the collection queried for listing pages.
const ItemsResource = "items"

// Prometheus metrics for content service requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "content_api_requests_total",
		Help: "Total content service requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "content_api_request_duration_seconds",
		Help:    "Content service request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "content_api_errors_total",
		Help: "Total content service errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the content service (e.g. "https://content.example.com/api").
	BaseURL string

	// Redis backs the response cache and quota state. Nil disables both.
	Redis redis.UniversalClient

	// UserAgent header sent with every request.
	UserAgent string

	// RateLimit is the outbound request rate per second (0 = unlimited).
	RateLimit float64

	// Burst is the limiter bucket size.
	Burst int

	// Timeout per request.
	Timeout time.Duration

	// CacheRetention keeps stale responses for revalidation.
	CacheRetention time.Duration

	// QuotaKey names the quota state in Redis.
	QuotaKey string
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string, redisClient redis.UniversalClient) Config {
	return Config{
		BaseURL:        baseURL,
		Redis:          redisClient,
		UserAgent:      "content-listing/1.0",
		RateLimit:      10,
		Burst:          5,
		Timeout:        10 * time.Second,
		CacheRetention: cache.DefaultRetention,
		QuotaKey:       "content",
	}
}

// Client queries the content service.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *rate.Limiter
	quota      *ratelimit.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// New creates a content service client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.QuotaKey == "" {
		cfg.QuotaKey = "content"
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	logger := logging.NewLogger("content-api")

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: base,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		config:  cfg,
		logger:  logger,
	}

	if cfg.Redis != nil {
		c.quota = ratelimit.NewTracker(cfg.Redis, cfg.QuotaKey, logger)
		c.cache = cache.NewManager(cfg.Redis, cfg.CacheRetention)
	}

	return c, nil
}

// ItemsURL returns the request URL for a page query.
func (c *Client) ItemsURL(q listing.Query) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + ItemsResource

	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("perPage", strconv.Itoa(q.PerPage))
	params.Set("status", q.Status)
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	u.RawQuery = params.Encode()

	return u.String()
}

// FetchItems retrieves one page of items. It implements listing.Source.
func (c *Client) FetchItems(ctx context.Context, q listing.Query) (listing.PageResult, error) {
	body, err := c.get(ctx, cache.KeyFor(ItemsResource, q), c.ItemsURL(q))
	if err != nil {
		return listing.PageResult{}, err
	}

	var result listing.PageResult
	if err := json.Unmarshal(body, &result); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return listing.PageResult{}, &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "decode page result",
			Err:        err,
		}
	}
	if result.Items == nil {
		result.Items = []listing.Item{}
	}

	return result, nil
}

// get performs a GET with quota gating, pacing, caching and revalidation.
func (c *Client) get(ctx context.Context, key cache.Key, target string) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	cached := c.lookup(ctx, key)
	if cached != nil && cached.IsFresh() {
		requestsTotal.WithLabelValues("cache").Inc()
		c.logger.Debug().Str("key", key.String()).Bool("cache_hit", true).Msg("Serving cached page")
		return cached.Data, nil
	}

	if c.quota != nil {
		allowed, err := c.quota.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Quota check failed")
		} else if !allowed {
			requestsTotal.WithLabelValues("rate_limited").Inc()
			errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, &APIError{
				ErrorClass: ErrorClassRateLimit,
				Message:    "request blocked",
				Err:        ErrQuotaExhausted,
			}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	if cache.ShouldMakeConditionalRequest(cached) {
		cache.AddConditionalHeaders(req, cached)
		cache.ConditionalRequests.Inc()
		c.logger.Debug().
			Str("key", key.String()).
			Str("etag", cached.ETag).
			Msg("Making conditional request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues("network_error").Inc()
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		c.logger.Warn().Err(err).Str("url", target).Msg("Content service request failed")
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if c.quota != nil {
		if err := c.quota.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update quota from headers")
		}
	}

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("key", key.String()).Msg("304 Not Modified - using cache")
		if _, err := c.cache.Refresh(ctx, key, cache.FreshUntil(resp.Header)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return cached.Data, nil
	}

	if resp.StatusCode != http.StatusOK {
		class := classifyStatus(resp.StatusCode)
		if class == "" {
			class = ErrorClassServer
		}
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Str("url", target).
			Msg("Content service error")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	entry, err := cache.ResponseToEntry(resp)
	switch {
	case errors.Is(err, cache.ErrNotCacheable):
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassNetwork,
				Message:    "read body",
				Err:        readErr,
			}
		}
		return body, nil
	case err != nil:
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	c.store(ctx, key, entry)
	return entry.Data, nil
}

// lookup returns the cached entry for key, or nil.
func (c *Client) lookup(ctx context.Context, key cache.Key) *cache.Entry {
	if c.cache == nil {
		return nil
	}
	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
		return nil
	}
	return entry
}

func (c *Client) store(ctx context.Context, key cache.Key, entry *cache.Entry) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache response")
		return
	}
	c.logger.Debug().
		Str("key", key.String()).
		Dur("ttl", entry.TTL()).
		Msg("Cached response")
}

// PurgeCache drops every cached listing page. Returns 0 without Redis.
func (c *Client) PurgeCache(ctx context.Context) (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	return c.cache.Purge(ctx, ItemsResource)
}

// Cache returns the cache manager, or nil when caching is disabled.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}
