// Command listing-server serves paginated, filterable content listings as
// JSON view models.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/content-listing/pkg/contentapi"
	"github.com/Sternrassler/content-listing/pkg/listing"
	"github.com/Sternrassler/content-listing/pkg/logging"
	"github.com/Sternrassler/content-listing/pkg/navigation"
)

// config is read from the environment.
type config struct {
	ContentAPIURL  string
	RedisURL       string
	Port           string
	BasePath       string
	PerPage        int
	RateLimit      float64
	LogLevel       logging.LogLevel
	LogPretty      bool
	WarmCategories []string
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: os.Stderr})
	logger := logging.NewLogger("listing-server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid REDIS_URL")
	}
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Str("redis", cfg.RedisURL).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("redis", cfg.RedisURL).Msg("Connected to Redis")

	apiCfg := contentapi.DefaultConfig(cfg.ContentAPIURL, redisClient)
	apiCfg.RateLimit = cfg.RateLimit
	api, err := contentapi.New(apiCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create content service client")
	}

	fetcher := listing.NewFetcher(api, cfg.PerPage, logging.NewLogger("listing-fetcher"))
	builder := navigation.NewBuilder(cfg.BasePath, navigation.FilteredStrategy{})
	srv := newServer(fetcher, builder, redisClient, api, logger)

	if len(cfg.WarmCategories) > 0 {
		go warmCache(ctx, api, cfg.PerPage, cfg.WarmCategories, logger)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", httpServer.Addr).
		Str("base_path", builder.BasePath()).
		Str("content_api", cfg.ContentAPIURL).
		Int("per_page", fetcher.PerPage()).
		Msg("Starting listing server")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Listing server stopped")
}

func loadConfig() (config, error) {
	cfg := config{
		ContentAPIURL: getEnv("CONTENT_API_URL", "http://localhost:8081"),
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		Port:          getEnv("PORT", "8080"),
		BasePath:      getEnv("LISTING_BASE_PATH", "/blog"),
		LogPretty:     getEnv("LOG_PRETTY", "false") == "true",
	}

	var err error
	if cfg.PerPage, err = strconv.Atoi(getEnv("PER_PAGE", strconv.Itoa(listing.DefaultPerPage))); err != nil || cfg.PerPage < 1 {
		return config{}, fmt.Errorf("PER_PAGE must be a positive integer")
	}
	if cfg.RateLimit, err = strconv.ParseFloat(getEnv("RATE_LIMIT", "10"), 64); err != nil || cfg.RateLimit < 0 {
		return config{}, fmt.Errorf("RATE_LIMIT must be a non-negative number")
	}
	if cfg.LogLevel, err = logging.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg.WarmCategories = parseWarm(getEnv("WARM_CACHE", ""))

	return cfg, nil
}

// parseWarm reads the comma separated WARM_CACHE list. "all" selects the
// unfiltered listing.
func parseWarm(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "all" {
			part = ""
		}
		if seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

// newRedisClient accepts a redis:// URL or a bare host:port.
func newRedisClient(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
