package store

import (
	"context"
	"errors"
	"sync"

	"github.com/Sternrassler/content-listing/pkg/listing"
	"github.com/Sternrassler/content-listing/pkg/navigation"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for listing state transitions.
var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_transitions_total",
		Help: "Total listing state events by event type",
	}, []string{"event"})

	staleResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_stale_responses_total",
		Help: "Total fetch results discarded because a newer fetch was issued",
	})
)

// Fetcher starts a page fetch and returns a channel that receives exactly
// one result. *listing.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, f listing.Filter) <-chan listing.PageResult
}

// Navigator updates the visible address of the listing view.
type Navigator interface {
	Push(address string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(address string)

// Push calls fn(address).
func (fn NavigatorFunc) Push(address string) {
	fn(address)
}

// Config holds the collaborators of a Store.
type Config struct {
	// Builder maps filters to addresses (required).
	Builder *navigation.Builder

	// Fetcher retrieves pages (required).
	Fetcher Fetcher

	// Navigator receives address updates (optional).
	Navigator Navigator

	// Logger for state events (default: global logger).
	Logger *zerolog.Logger
}

// Snapshot is what a listing view renders.
type Snapshot struct {
	ViewID   string
	State    State
	Address  string
	Controls []navigation.Control
	Empty    bool
}

// Store holds the filter and page of one listing view.
//
// Subscribers and the Navigator are called synchronously while the store
// is locked; they must not call back into the Store.
type Store struct {
	mu          sync.Mutex
	id          string
	state       State
	builder     *navigation.Builder
	fetcher     Fetcher
	navigator   Navigator
	logger      zerolog.Logger
	subscribers map[int]func(Snapshot)
	nextSubID   int
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle Store for filter with the result the host already
// fetched for it.
func New(filter listing.Filter, result listing.PageResult, cfg Config) (*Store, error) {
	if cfg.Builder == nil {
		return nil, errors.New("navigation builder is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}

	id := uuid.NewString()
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("component", "listing-store").Str("view_id", id).Logger()

	if result.Items == nil {
		result.Items = []listing.Item{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		id: id,
		state: State{
			Filter: filter.Normalize(),
			Result: result,
			Status: StatusIdle,
		},
		builder:     cfg.Builder,
		fetcher:     cfg.Fetcher,
		navigator:   cfg.Navigator,
		logger:      logger,
		subscribers: make(map[int]func(Snapshot)),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// NewFromAddress parses the load-time address and creates a Store for it.
func NewFromAddress(address string, result listing.PageResult, cfg Config) (*Store, error) {
	if cfg.Builder == nil {
		return nil, errors.New("navigation builder is required")
	}
	addr, err := cfg.Builder.Parse(address)
	if err != nil {
		return nil, err
	}
	return New(addr.Filter, result, cfg)
}

// ID returns the view id used in logs.
func (s *Store) ID() string {
	return s.id
}

// Dispatch applies ev and performs the resulting effects.
func (s *Store) Dispatch(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	transitionsTotal.WithLabelValues(ev.eventName()).Inc()

	next, eff := Transition(s.state, ev)
	s.state = next

	if eff.Stale {
		staleResponsesTotal.Inc()
		s.logger.Debug().
			Uint64("generation", uint64(ev.(FetchResolved).Generation)).
			Uint64("current_generation", uint64(s.state.Generation)).
			Msg("Discarding stale listing result")
		return
	}
	if !eff.Changed() {
		return
	}

	if eff.PushAddress && s.navigator != nil {
		s.navigator.Push(s.builder.Link(eff.Filter.Page, eff.Filter))
	}

	if eff.Fetch {
		s.logger.Debug().
			Str("event", ev.eventName()).
			Str("category", eff.Filter.Category).
			Int("page", eff.Filter.Page).
			Uint64("generation", uint64(eff.Generation)).
			Msg("Fetching listing page")
		s.startFetch(eff.Generation, eff.Filter)
	}

	snap := s.snapshotLocked()
	for _, fn := range s.subscribers {
		fn(snap)
	}
}

func (s *Store) startFetch(gen Generation, f listing.Filter) {
	ch := s.fetcher.Fetch(s.ctx, f)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case result := <-ch:
			s.Dispatch(FetchResolved{Generation: gen, Result: result})
		case <-s.ctx.Done():
		}
	}()
}

// SelectCategory switches to slug ("" clears the filter) and page 1.
func (s *Store) SelectCategory(slug string) {
	s.Dispatch(CategorySelected{Slug: slug})
}

// SelectPage switches to page n of the current filter.
func (s *Store) SelectPage(n int) {
	s.Dispatch(PageSelected{Page: n})
}

// SetSearch applies a (debounced) search term.
func (s *Store) SetSearch(term string) {
	s.Dispatch(SearchChanged{Term: term})
}

// Reload re-fetches the current filter.
func (s *Store) Reload() {
	s.Dispatch(Reloaded{})
}

// Navigate reconciles the store with an address that changed externally.
func (s *Store) Navigate(address string) error {
	addr, err := s.builder.Parse(address)
	if err != nil {
		return err
	}
	s.Dispatch(ExternalNavigation{Filter: addr.Filter})
	return nil
}

// Snapshot returns the current view state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	st := s.state
	return Snapshot{
		ViewID:   s.id,
		State:    st,
		Address:  s.builder.Link(st.Filter.Page, st.Filter),
		Controls: s.builder.Controls(st.Filter.Page, st.Result.PageCount, st.Filter),
		Empty:    st.Result.IsEmpty(),
	}
}

// Subscribe registers fn for every accepted transition and returns a
// function that removes it.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Close detaches the store: outstanding results are ignored and later
// events are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}
