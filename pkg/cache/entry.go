// Package cache keeps content-service page responses in Redis and supports
// ETag revalidation of stale entries.
//
// An entry is fresh until its Expires time (from Cache-Control max-age or
// the Expires header). After that it is kept for a retention window so the
// client can revalidate it with If-None-Match instead of refetching.
//
//	manager := cache.NewManager(redisClient, cache.DefaultRetention)
//	key := cache.KeyFor("items", query)
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch from the content service
//	case entry.IsFresh():
//		// serve entry.Data
//	default:
//		cache.AddConditionalHeaders(req, entry)
//	}
package cache

import (
	"time"
)

// Entry is a cached content-service response body.
type Entry struct {
	// Data is the response body.
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match).
	ETag string `json:"etag"`

	// LastModified from the Last-Modified header.
	LastModified time.Time `json:"last_modified"`

	// Expires is when the entry stops being fresh.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored or last revalidated.
	CachedAt time.Time `json:"cached_at"`
}

// IsFresh returns true if the entry can be served without revalidation.
func (e *Entry) IsFresh() bool {
	return time.Now().Before(e.Expires)
}

// TTL returns the remaining freshness, or 0 once stale.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
