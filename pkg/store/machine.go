// Package store owns the filter/page state of one listing view.
//
// State changes are expressed as events fed through Transition, a pure
// function that returns the next state plus the side effects to perform.
// Store serializes events, performs the effects (address push, fetch) and
// feeds fetch results back in as FetchResolved events.
//
// Every fetch is tagged with a freshly minted Generation. A FetchResolved
// event whose generation is not the latest one is discarded, so the last
// request initiated always wins regardless of resolution order.
package store

import (
	"github.com/Sternrassler/content-listing/pkg/listing"
)

// Status is the fetch state of a listing view.
type Status int

const (
	// StatusIdle means the last accepted result is current.
	StatusIdle Status = iota

	// StatusPending means a fetch is outstanding.
	StatusPending
)

// String returns "idle" or "pending".
func (s Status) String() string {
	if s == StatusPending {
		return "pending"
	}
	return "idle"
}

// Generation identifies one issued fetch. Generations only grow.
type Generation uint64

// State is the full state of a listing view.
type State struct {
	Filter     listing.Filter
	Result     listing.PageResult
	Status     Status
	Generation Generation
}

// Event is an input to Transition.
type Event interface {
	eventName() string
}

// ExternalNavigation reports that the visible address changed outside the
// store, e.g. browser back/forward.
type ExternalNavigation struct {
	Filter listing.Filter
}

// CategorySelected is the user choosing a category ("" clears it).
type CategorySelected struct {
	Slug string
}

// PageSelected is the user choosing a page.
type PageSelected struct {
	Page int
}

// SearchChanged carries a debounced free-text search term.
type SearchChanged struct {
	Term string
}

// Reloaded re-issues the fetch for the current filter.
type Reloaded struct{}

// FetchResolved delivers the result of the fetch tagged with Generation.
type FetchResolved struct {
	Generation Generation
	Result     listing.PageResult
}

func (ExternalNavigation) eventName() string { return "external_navigation" }
func (CategorySelected) eventName() string   { return "category_selected" }
func (PageSelected) eventName() string       { return "page_selected" }
func (SearchChanged) eventName() string      { return "search_changed" }
func (Reloaded) eventName() string           { return "reloaded" }
func (FetchResolved) eventName() string      { return "fetch_resolved" }

// Effect lists what the caller of Transition must do.
type Effect struct {
	// Fetch requests a fetch of Filter tagged with Generation.
	Fetch      bool
	Generation Generation
	Filter     listing.Filter

	// PushAddress asks for the visible address to be updated to Filter.
	PushAddress bool

	// Accepted is set when a FetchResolved result was adopted.
	Accepted bool

	// Stale is set when a FetchResolved result was discarded.
	Stale bool
}

// Changed reports whether the transition altered the state.
func (e Effect) Changed() bool {
	return e.Fetch || e.Accepted
}

// Transition applies ev to s.
func Transition(s State, ev Event) (State, Effect) {
	switch ev := ev.(type) {
	case ExternalNavigation:
		next := ev.Filter.Normalize()
		if next == s.Filter {
			return s, Effect{}
		}
		return begin(s, next, false)

	case CategorySelected:
		next := s.Filter
		next.Category = ev.Slug
		next.Page = 1
		return begin(s, next.Normalize(), true)

	case PageSelected:
		next := s.Filter
		next.Page = ev.Page
		return begin(s, next.Normalize(), true)

	case SearchChanged:
		next := s.Filter
		next.Search = ev.Term
		next = next.Normalize()
		if next.Search == s.Filter.Search {
			return s, Effect{}
		}
		next.Page = 1
		return begin(s, next, true)

	case Reloaded:
		return begin(s, s.Filter, false)

	case FetchResolved:
		if ev.Generation != s.Generation || s.Status != StatusPending {
			return s, Effect{Stale: true}
		}
		s.Result = ev.Result
		s.Status = StatusIdle
		return s, Effect{Accepted: true}
	}

	return s, Effect{}
}

func begin(s State, next listing.Filter, push bool) (State, Effect) {
	s.Filter = next
	s.Generation++
	s.Status = StatusPending
	return s, Effect{
		Fetch:       true,
		Generation:  s.Generation,
		Filter:      next,
		PushAddress: push,
	}
}
