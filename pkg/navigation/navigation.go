// Package navigation maps listing filters to canonical addresses and back.
//
// Addresses have the form
//
//	<base>[/page/<n>][?category=<slug>[&q=<term>]]
//
// where the page segment is only present for n >= 2. Page 1 always uses the
// bare base path so every listing has exactly one canonical first page.
package navigation

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/content-listing/pkg/listing"
	"github.com/Sternrassler/content-listing/pkg/pagination"
)

// Query parameter and path segment names of the address contract.
const (
	QueryCategory = "category"
	QuerySearch   = "q"
	PageSegment   = "page"
)

var (
	// ErrOutsideListing is returned when an address is not below the base path.
	ErrOutsideListing = errors.New("address outside listing")

	// ErrInvalidPage is returned when the page segment is not an integer.
	ErrInvalidPage = errors.New("invalid page segment")
)

// LinkStrategy decides which filter fields travel in the query string.
type LinkStrategy interface {
	Query(f listing.Filter) url.Values
}

// PlainStrategy builds links for an unfiltered listing; no query is kept.
type PlainStrategy struct{}

// Query returns nil.
func (PlainStrategy) Query(listing.Filter) url.Values {
	return nil
}

// FilteredStrategy keeps the category and search term in the query.
type FilteredStrategy struct{}

// Query returns the category and search parameters that are set.
func (FilteredStrategy) Query(f listing.Filter) url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set(QueryCategory, f.Category)
	}
	if f.Search != "" {
		q.Set(QuerySearch, f.Search)
	}
	return q
}

// Builder produces listing addresses under one base path.
type Builder struct {
	basePath string
	strategy LinkStrategy
}

// NewBuilder creates a Builder. A nil strategy selects FilteredStrategy.
func NewBuilder(basePath string, strategy LinkStrategy) *Builder {
	if strategy == nil {
		strategy = FilteredStrategy{}
	}
	return &Builder{
		basePath: normalizeBase(basePath),
		strategy: strategy,
	}
}

// BasePath returns the canonical first-page path.
func (b *Builder) BasePath() string {
	if b.basePath == "" {
		return "/"
	}
	return b.basePath
}

// PagePattern returns the route pattern for pages >= 2 (chi syntax).
func (b *Builder) PagePattern() string {
	return b.basePath + "/" + PageSegment + "/{page}"
}

// Link returns the address of targetPage under filter f.
func (b *Builder) Link(targetPage int, f listing.Filter) string {
	path := b.BasePath()
	if targetPage > 1 {
		path = b.basePath + "/" + PageSegment + "/" + strconv.Itoa(targetPage)
	}

	if q := b.strategy.Query(f.Normalize()); len(q) > 0 {
		return path + "?" + q.Encode()
	}
	return path
}

// Control is one page-control entry: a token and its link.
type Control struct {
	Token   pagination.Token
	Href    string
	Current bool
}

// Controls pairs the page sequence for current/pageCount with links.
// Ellipsis tokens carry no link.
func (b *Builder) Controls(current, pageCount int, f listing.Filter) []Control {
	seq := pagination.Sequence(current, pageCount)
	controls := make([]Control, len(seq))
	for i, tok := range seq {
		c := Control{Token: tok}
		if !tok.Ellipsis {
			c.Href = b.Link(tok.Page, f)
			c.Current = tok.Page == current
		}
		controls[i] = c
	}
	return controls
}

// Address is a parsed listing address.
type Address struct {
	Filter listing.Filter

	// Canonical is false when the address differs from Link(Filter.Page,
	// Filter): page 1 or below spelled with a page segment, a padded or
	// signed page number, a trailing slash, untrimmed or reordered query
	// values, or parameters the strategy does not emit. Hosts redirect such
	// addresses to Link(Filter.Page, Filter).
	Canonical bool
}

// Parse reads the filter out of an address (path plus optional query).
func (b *Builder) Parse(address string) (Address, error) {
	u, err := url.Parse(address)
	if err != nil {
		return Address{}, fmt.Errorf("parse address: %w", err)
	}
	return b.ParseURL(u)
}

// ParseURL is Parse for an already parsed URL.
func (b *Builder) ParseURL(u *url.URL) (Address, error) {
	path := u.Path
	canonical := true
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimRight(path, "/")
		canonical = false
	}
	if path == "" {
		path = "/"
	}

	page := 1
	switch {
	case path == b.BasePath():
	case strings.HasPrefix(path, b.basePath+"/"+PageSegment+"/"):
		raw := strings.TrimPrefix(path, b.basePath+"/"+PageSegment+"/")
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidPage, raw)
		}
		if n <= 1 {
			canonical = false
			n = 1
		}
		page = n
	default:
		return Address{}, fmt.Errorf("%w: %s", ErrOutsideListing, u.Path)
	}

	query := u.Query()
	f := listing.Filter{
		Category: query.Get(QueryCategory),
		Search:   query.Get(QuerySearch),
		Page:     page,
	}.Normalize()

	if canonical {
		canonical = b.Link(f.Page, f) == spelled(path, u.RawQuery)
	}

	return Address{Filter: f, Canonical: canonical}, nil
}

// spelled reassembles the address as the client wrote it.
func spelled(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	return path + "?" + rawQuery
}

func normalizeBase(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	basePath = strings.TrimRight(basePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return basePath
}
