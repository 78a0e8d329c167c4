package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/content-listing/pkg/contentapi"
	"github.com/Sternrassler/content-listing/pkg/debounce"
	"github.com/Sternrassler/content-listing/pkg/listing"
	"github.com/Sternrassler/content-listing/pkg/logging"
	"github.com/Sternrassler/content-listing/pkg/navigation"
	"github.com/Sternrassler/content-listing/pkg/store"
)

// idleTimeout bounds how long scripted mode waits for a page.
const idleTimeout = 15 * time.Second

// browser hosts one Store and renders its snapshots as text.
type browser struct {
	store     *store.Store
	builder   *navigation.Builder
	debouncer *debounce.Debouncer
	redis     *redis.Client
	sync      bool

	outMu sync.Mutex
	out   io.Writer

	histMu  sync.Mutex
	history []string

	unsubscribe func()
}

func newBrowser(ctx context.Context, opts options, out, errOut io.Writer) (*browser, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, err
	}
	logging.Setup(logging.Config{Level: level, Pretty: true, Output: errOut})
	logger := logging.NewLogger("listing-browse")

	b := &browser{out: out, sync: opts.sync}

	var redisClient redis.UniversalClient
	if opts.redisURL != "" {
		b.redis = redis.NewClient(&redis.Options{Addr: opts.redisURL})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.redis.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		redisClient = b.redis
	}

	apiCfg := contentapi.DefaultConfig(opts.apiURL, redisClient)
	apiCfg.RateLimit = opts.rateLimit
	api, err := contentapi.New(apiCfg)
	if err != nil {
		b.closeRedis()
		return nil, err
	}

	fetcher := listing.NewFetcher(api, opts.perPage, logging.NewLogger("listing-fetcher"))
	builder := navigation.NewBuilder(opts.basePath, navigation.FilteredStrategy{})

	address := opts.address
	if address == "" {
		address = builder.BasePath()
	}
	addr, err := builder.Parse(address)
	if err != nil {
		b.closeRedis()
		return nil, err
	}

	initial := fetcher.FetchNow(ctx, addr.Filter)
	st, err := store.New(addr.Filter, initial, store.Config{
		Builder:   builder,
		Fetcher:   fetcher,
		Navigator: store.NavigatorFunc(b.push),
		Logger:    &logger,
	})
	if err != nil {
		b.closeRedis()
		return nil, err
	}
	b.store = st
	b.builder = builder
	b.debouncer = debounce.New(opts.debounce, st.SetSearch)

	snap := st.Snapshot()
	b.history = []string{snap.Address}
	b.render(snap)
	b.unsubscribe = st.Subscribe(b.render)

	return b, nil
}

// run executes commands from in until EOF or quit.
func (b *browser) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		quit, err := b.exec(scanner.Text())
		if err != nil {
			b.printf("error: %v\n", err)
		}
		if quit {
			break
		}
		if b.sync {
			b.waitIdle(idleTimeout)
		}
	}

	b.debouncer.Flush()
	b.waitIdle(idleTimeout)

	return scanner.Err()
}

// exec runs one command line.
func (b *browser) exec(line string) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "":
	case "category", "c":
		b.store.SelectCategory(arg)
	case "page", "p":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return false, fmt.Errorf("page needs a positive number, got %q", arg)
		}
		b.store.SelectPage(n)
	case "search", "s":
		b.debouncer.Input(arg)
		if b.sync {
			b.debouncer.Flush()
		}
	case "back", "b":
		return false, b.back()
	case "go":
		return false, b.open(arg)
	case "reload", "r":
		b.store.Reload()
	case "items":
		for _, item := range b.store.Snapshot().State.Result.Items {
			b.printf("  %s\n", item)
		}
	case "show":
		b.render(b.store.Snapshot())
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", name)
	}
	return false, nil
}

// push records an address the store navigated to.
func (b *browser) push(address string) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history = append(b.history, address)
}

// open navigates to address and records its canonical form in the history.
func (b *browser) open(address string) error {
	addr, err := b.builder.Parse(address)
	if err != nil {
		return err
	}
	if err := b.store.Navigate(address); err != nil {
		return err
	}

	canonical := b.builder.Link(addr.Filter.Page, addr.Filter)
	b.histMu.Lock()
	defer b.histMu.Unlock()
	if b.history[len(b.history)-1] != canonical {
		b.history = append(b.history, canonical)
	}
	return nil
}

// back pops the current address and reopens the previous one.
func (b *browser) back() error {
	b.histMu.Lock()
	if len(b.history) < 2 {
		b.histMu.Unlock()
		return errors.New("no previous address")
	}
	b.history = b.history[:len(b.history)-1]
	prev := b.history[len(b.history)-1]
	b.histMu.Unlock()

	return b.store.Navigate(prev)
}

// render prints one snapshot. Called under the store lock.
func (b *browser) render(snap store.Snapshot) {
	if snap.State.Status == store.StatusPending {
		b.printf("loading %s\n", snap.Address)
		return
	}
	if snap.Empty {
		b.printf("%s  no items\n", snap.Address)
		return
	}

	b.printf("%s  page %d/%d  (%d items)\n",
		snap.Address, snap.State.Filter.Page, snap.State.Result.PageCount, len(snap.State.Result.Items))
	b.printf("  %s\n", controlsLine(snap.Controls))
}

// controlsLine renders controls with the current page in brackets.
func controlsLine(controls []navigation.Control) string {
	parts := make([]string, len(controls))
	for i, c := range controls {
		label := c.Token.String()
		if c.Current {
			label = "[" + label + "]"
		}
		parts[i] = label
	}
	return strings.Join(parts, " ")
}

func (b *browser) printf(format string, args ...any) {
	b.outMu.Lock()
	defer b.outMu.Unlock()
	fmt.Fprintf(b.out, format, args...)
}

// waitIdle polls until no fetch is outstanding or timeout passes.
func (b *browser) waitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.store.Snapshot().State.Status == store.StatusIdle {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (b *browser) close() {
	b.debouncer.Stop()
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.store.Close()
	b.closeRedis()
}

func (b *browser) closeRedis() {
	if b.redis != nil {
		b.redis.Close()
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
