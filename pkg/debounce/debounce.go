// Package debounce coalesces bursts of free-text search input into a single
// filter update per quiet period.
package debounce

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

// DefaultInterval is the quiet period after the last keystroke.
const DefaultInterval = 200 * time.Millisecond

// Debouncer delivers the last search term of a burst to its sink once no
// new input arrived for the interval. Each Input cancels and restarts the
// single timer.
type Debouncer struct {
	mu        sync.Mutex
	debounced func(f func())
	sink      func(term string)
	pending   string
	has       bool
	gen       uint64
	stopped   bool
}

// New creates a Debouncer. interval <= 0 selects DefaultInterval.
func New(interval time.Duration, sink func(term string)) *Debouncer {
	if sink == nil {
		panic("debounce sink cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Debouncer{
		debounced: debounce.New(interval),
		sink:      sink,
	}
}

// Input records a keystroke's current term and restarts the timer.
func (d *Debouncer) Input(term string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = term
	d.has = true
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	d.debounced(func() { d.fire(gen) })
}

// Flush delivers a pending term immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped || !d.has {
		d.mu.Unlock()
		return
	}
	term := d.pending
	d.has = false
	d.gen++
	d.mu.Unlock()

	d.sink(term)
}

// Stop drops any pending term; later input is ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.has = false
	d.gen++
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || !d.has || gen != d.gen {
		d.mu.Unlock()
		return
	}
	term := d.pending
	d.has = false
	d.mu.Unlock()

	d.sink(term)
}
