package main

import (
	"github.com/Sternrassler/content-listing/pkg/listing"
	"github.com/Sternrassler/content-listing/pkg/navigation"
	"github.com/Sternrassler/content-listing/pkg/pagination"
)

// listingView is the JSON rendering of one listing page.
type listingView struct {
	Items     []listing.Item `json:"items"`
	PageCount int            `json:"pageCount"`
	Page      int            `json:"page"`
	Category  string         `json:"category,omitempty"`
	Search    string         `json:"search,omitempty"`
	Empty     bool           `json:"empty"`
	Canonical string         `json:"canonical"`
	Prev      string         `json:"prev,omitempty"`
	Next      string         `json:"next,omitempty"`
	Controls  []controlView  `json:"controls"`
}

// controlView is one page control. Ellipsis entries carry no href.
type controlView struct {
	Label    string `json:"label"`
	Href     string `json:"href,omitempty"`
	Current  bool   `json:"current,omitempty"`
	Ellipsis bool   `json:"ellipsis,omitempty"`
}

func newListingView(b *navigation.Builder, f listing.Filter, result listing.PageResult) listingView {
	items := result.Items
	if items == nil {
		items = []listing.Item{}
	}

	view := listingView{
		Items:     items,
		PageCount: result.PageCount,
		Page:      f.Page,
		Category:  f.Category,
		Search:    f.Search,
		Empty:     result.IsEmpty(),
		Canonical: b.Link(f.Page, f),
	}

	window := pagination.NewWindow(f.Page, result.PageCount)
	if window.Prev > 0 {
		view.Prev = b.Link(window.Prev, f)
	}
	if window.Next > 0 {
		view.Next = b.Link(window.Next, f)
	}

	controls := b.Controls(f.Page, result.PageCount, f)
	view.Controls = make([]controlView, len(controls))
	for i, c := range controls {
		view.Controls[i] = controlView{
			Label:    c.Token.String(),
			Href:     c.Href,
			Current:  c.Current,
			Ellipsis: c.Token.Ellipsis,
		}
	}

	return view
}
