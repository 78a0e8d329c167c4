// Package testutil provides a mock content query service for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockItem is an item served by MockContent.
type MockItem struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

// MockResponse overrides the /items response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockContent is a configurable mock of the content query service. It
// serves GET /items with paging, category and search filtering, ETags and
// X-RateLimit quota headers.
type MockContent struct {
	server *httptest.Server
	mu     sync.RWMutex

	items          []MockItem
	override       *MockResponse
	delay          time.Duration
	maxAge         int
	quotaLimit     int
	quotaRemaining int

	requestCount     int
	conditionalCount int
	notModifiedCount int
	queries          []url.Values
}

// GenerateItems returns n published items with titles "Item 1".."Item n",
// assigned round-robin to categories.
func GenerateItems(n int, categories ...string) []MockItem {
	items := make([]MockItem, 0, n)
	for i := 1; i <= n; i++ {
		item := MockItem{
			ID:     i,
			Title:  fmt.Sprintf("Item %d", i),
			Status: "published",
		}
		if len(categories) > 0 {
			item.Category = categories[(i-1)%len(categories)]
		}
		items = append(items, item)
	}
	return items
}

// NewMockContent starts a mock content service serving items.
func NewMockContent(items []MockItem) *MockContent {
	mock := &MockContent{
		items:  items,
		maxAge: 60,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/items", mock.handleItems)
	mock.server = httptest.NewServer(mux)
	return mock
}

// URL returns the mock server URL.
func (m *MockContent) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockContent) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockContent) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.notModifiedCount = 0
	m.queries = nil
}

// SetItems replaces the served items.
func (m *MockContent) SetItems(items []MockItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}

// SetResponse makes every /items request return resp.
func (m *MockContent) SetResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = &resp
}

// ClearResponse restores normal item serving.
func (m *MockContent) ClearResponse() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = nil
}

// SetDelay delays every response by d.
func (m *MockContent) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetMaxAge sets the Cache-Control max-age in seconds.
func (m *MockContent) SetMaxAge(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxAge = seconds
}

// SetQuota enables X-RateLimit headers. Each request consumes one unit.
func (m *MockContent) SetQuota(limit, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotaLimit = limit
	m.quotaRemaining = remaining
}

// RequestCount returns the number of /items requests.
func (m *MockContent) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// ConditionalCount returns the number of requests carrying If-None-Match.
func (m *MockContent) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// NotModifiedCount returns the number of 304 responses sent.
func (m *MockContent) NotModifiedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notModifiedCount
}

// LastQuery returns the query of the most recent request, or nil.
func (m *MockContent) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.queries) == 0 {
		return nil
	}
	return m.queries[len(m.queries)-1]
}

// Queries returns the queries of all requests in arrival order.
func (m *MockContent) Queries() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]url.Values, len(m.queries))
	copy(out, m.queries)
	return out
}

func (m *MockContent) handleItems(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.queries = append(m.queries, r.URL.Query())
	if r.Header.Get("If-None-Match") != "" {
		m.conditionalCount++
	}
	delay := m.delay
	override := m.override
	maxAge := m.maxAge
	if m.quotaLimit > 0 {
		if m.quotaRemaining > 0 {
			m.quotaRemaining--
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.quotaLimit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(m.quotaRemaining))
		w.Header().Set("X-RateLimit-Reset", "60")
	}
	items := m.items
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if override != nil {
		for key, value := range override.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(override.StatusCode)
		if override.Body != "" {
			w.Write([]byte(override.Body))
		}
		return
	}

	body := pageBody(items, r.URL.Query())
	etag := fmt.Sprintf(`"%x"`, hashOf(body))

	w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(maxAge))
	w.Header().Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		m.mu.Lock()
		m.notModifiedCount++
		m.mu.Unlock()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// pageBody filters items by the query and encodes the requested page.
func pageBody(items []MockItem, q url.Values) []byte {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	if perPage < 1 {
		perPage = 12
	}
	status := q.Get("status")
	category := q.Get("category")
	search := strings.ToLower(q.Get("search"))

	matched := make([]MockItem, 0, len(items))
	for _, item := range items {
		if status != "" && item.Status != status {
			continue
		}
		if category != "" && item.Category != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(item.Title), search) {
			continue
		}
		matched = append(matched, item)
	}

	pageCount := (len(matched) + perPage - 1) / perPage
	data := []MockItem{}
	if start := (page - 1) * perPage; start < len(matched) {
		end := start + perPage
		if end > len(matched) {
			end = len(matched)
		}
		data = matched[start:end]
	}

	body, _ := json.Marshal(struct {
		Data      []MockItem `json:"data"`
		PageCount int        `json:"pageCount"`
	}{Data: data, PageCount: pageCount})
	return body
}

func hashOf(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "30",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not a page result.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>maintenance</html>`,
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}
