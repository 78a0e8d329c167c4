package cache

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/Sternrassler/content-listing/pkg/listing"
)

// KeyPrefix namespaces every listing cache key in Redis.
const KeyPrefix = "listing"

// Key identifies one cached content-service page.
type Key struct {
	// Resource is the content-service collection (e.g. "items").
	Resource string

	// Params are the query parameters sent to the service.
	Params url.Values
}

// KeyFor builds the key for a page query against resource.
func KeyFor(resource string, q listing.Query) Key {
	return Key{
		Resource: resource,
		Params: url.Values{
			"page":     []string{strconv.Itoa(q.Page)},
			"perPage":  []string{strconv.Itoa(q.PerPage)},
			"status":   []string{q.Status},
			"category": []string{q.Category},
			"search":   []string{q.Search},
		},
	}
}

// String generates a deterministic key string.
// Format: listing:resource:param1=val1:param2=val2
//
// Example:
//
//	listing:items:category=go:page=2:perPage=12:search=:status=published
func (k Key) String() string {
	parts := []string{KeyPrefix}

	if resource := strings.Trim(k.Resource, "/"); resource != "" {
		parts = append(parts, resource)
	}

	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		parts = append(parts, name+"="+url.QueryEscape(k.Params.Get(name)))
	}

	return strings.Join(parts, ":")
}

// Pattern returns a SCAN/KEYS pattern matching every page of resource.
func Pattern(resource string) string {
	return KeyPrefix + ":" + strings.Trim(resource, "/") + ":*"
}
