// Package listing defines the filter and page-result types shared by the
// listing engine, and the asynchronous fetcher that retrieves one page of
// items from the content query service.
package listing

import (
	"context"
	"encoding/json"
	"strings"
)

const (
	// DefaultPerPage is the page size requested from the content service.
	DefaultPerPage = 12

	// StatusPublished is the only item status a public listing requests.
	StatusPublished = "published"
)

// Item is a single listing entry. The engine never inspects it.
type Item = json.RawMessage

// Filter is the category/search/page combination that determines which
// items are requested.
type Filter struct {
	// Category is the active category slug ("" means unfiltered).
	Category string

	// Search is the free-text search term ("" means none).
	Search string

	// Page is the 1-based page number.
	Page int
}

// Normalize trims the category and search term and clamps Page to >= 1.
func (f Filter) Normalize() Filter {
	f.Category = strings.TrimSpace(f.Category)
	f.Search = strings.TrimSpace(f.Search)
	if f.Page < 1 {
		f.Page = 1
	}
	return f
}

// SameScope reports whether f and other select the same item set,
// ignoring the page.
func (f Filter) SameScope(other Filter) bool {
	return f.Category == other.Category && f.Search == other.Search
}

// PageResult is one page of items plus the total page count.
type PageResult struct {
	// Items in the order the content service returned them.
	Items []Item `json:"data"`

	// PageCount is the authoritative upper bound for Filter.Page.
	PageCount int `json:"pageCount"`
}

// EmptyResult returns the result used for empty pages and failed fetches.
func EmptyResult() PageResult {
	return PageResult{Items: []Item{}, PageCount: 0}
}

// IsEmpty returns true if the result holds no items.
func (r PageResult) IsEmpty() bool {
	return len(r.Items) == 0
}

// Query is the request shape understood by the content query service.
type Query struct {
	Page     int
	PerPage  int
	Status   string
	Category string
	Search   string
}

// QueryFor builds the service query for a filter.
func QueryFor(f Filter, perPage int) Query {
	f = f.Normalize()
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return Query{
		Page:     f.Page,
		PerPage:  perPage,
		Status:   StatusPublished,
		Category: f.Category,
		Search:   f.Search,
	}
}

// Source is the content query service.
type Source interface {
	// FetchItems returns one page of items matching q.
	FetchItems(ctx context.Context, q Query) (PageResult, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, q Query) (PageResult, error)

// FetchItems calls fn(ctx, q).
func (fn SourceFunc) FetchItems(ctx context.Context, q Query) (PageResult, error) {
	return fn(ctx, q)
}
