package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Sternrassler/content-listing/pkg/listing"
	"github.com/Sternrassler/content-listing/pkg/metrics"
	"github.com/Sternrassler/content-listing/pkg/navigation"
)

// cachePurger drops cached listing pages.
type cachePurger interface {
	PurgeCache(ctx context.Context) (int, error)
}

type server struct {
	fetcher *listing.Fetcher
	builder *navigation.Builder
	redis   redis.UniversalClient
	purger  cachePurger
	logger  zerolog.Logger
}

// newServer wires the HTTP handlers. redis and purger may be nil.
func newServer(fetcher *listing.Fetcher, builder *navigation.Builder, redisClient redis.UniversalClient, purger cachePurger, logger zerolog.Logger) *server {
	return &server{
		fetcher: fetcher,
		builder: builder,
		redis:   redisClient,
		purger:  purger,
		logger:  logger,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RedirectSlashes)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/cache/purge", s.handlePurge)

	r.Get(s.builder.BasePath(), s.handleListing)
	r.Get(s.builder.PagePattern(), s.handleListing)

	return otelhttp.NewHandler(r, "listing-server")
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "redis": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *server) handleListing(w http.ResponseWriter, r *http.Request) {
	addr, err := s.builder.ParseURL(r.URL)
	if err != nil {
		if errors.Is(err, navigation.ErrInvalidPage) || errors.Is(err, navigation.ErrOutsideListing) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if !addr.Canonical {
		target := s.builder.Link(addr.Filter.Page, addr.Filter)
		s.logger.Info().
			Str("from", r.URL.RequestURI()).
			Str("to", target).
			Msg("Redirecting to canonical address")
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	result := s.fetcher.FetchNow(r.Context(), addr.Filter)
	view := newListingView(s.builder, addr.Filter, result)

	w.Header().Set("Link", "<"+view.Canonical+`>; rel="canonical"`)
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if s.purger == nil {
		writeJSON(w, http.StatusOK, map[string]int{"deleted": 0})
		return
	}
	deleted, err := s.purger.PurgeCache(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Cache purge failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache purge failed"})
		return
	}
	s.logger.Info().Int("deleted", deleted).Msg("Cache purged")
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// requestLogger logs one line per request with zerolog.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
