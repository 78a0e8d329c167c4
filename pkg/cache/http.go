package cache

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultFreshness applies when the response carries no freshness headers.
const DefaultFreshness = 60 * time.Second

// ErrNotCacheable is returned for responses marked no-store.
var ErrNotCacheable = errors.New("response not cacheable")

// ResponseToEntry converts a 200 response to an Entry. The body is read and
// restored for the caller.
func ResponseToEntry(resp *http.Response) (*Entry, error) {
	if resp == nil {
		return nil, errors.New("response cannot be nil")
	}

	expires, cacheable := parseFreshness(resp.Header)
	if !cacheable {
		return nil, ErrNotCacheable
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := &Entry{
		Data:     body,
		ETag:     resp.Header.Get("ETag"),
		Expires:  expires,
		CachedAt: time.Now(),
	}
	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

// FreshUntil returns the freshness deadline announced by headers, used to
// extend an entry after a 304 Not Modified.
func FreshUntil(headers http.Header) time.Time {
	expires, _ := parseFreshness(headers)
	return expires
}

// parseFreshness reads Cache-Control max-age, then Expires. The second
// return value is false for no-store responses.
func parseFreshness(headers http.Header) (time.Time, bool) {
	now := time.Now()

	for _, directive := range strings.Split(headers.Get("Cache-Control"), ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		switch {
		case directive == "no-store":
			return now, false
		case directive == "no-cache":
			return now, true
		case strings.HasPrefix(directive, "max-age="):
			secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err == nil && secs >= 0 {
				return now.Add(time.Duration(secs) * time.Second), true
			}
		}
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(DefaultFreshness), true
	}
	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(DefaultFreshness), true
	}
	if expires.Before(now) {
		return now, true
	}
	return expires, true
}

// ShouldMakeConditionalRequest reports whether entry carries a validator.
func ShouldMakeConditionalRequest(entry *Entry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// AddConditionalHeaders sets If-None-Match (preferred) or If-Modified-Since.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil {
		return
	}
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}
