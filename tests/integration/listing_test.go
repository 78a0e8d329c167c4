//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/content-listing/internal/testutil"
	"github.com/Sternrassler/content-listing/pkg/contentapi"
	"github.com/Sternrassler/content-listing/pkg/listing"
	"github.com/Sternrassler/content-listing/pkg/navigation"
	"github.com/Sternrassler/content-listing/pkg/pagination"
	"github.com/Sternrassler/content-listing/pkg/store"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newClient(t *testing.T, mock *testutil.MockContent, redisClient redis.UniversalClient) *contentapi.Client {
	t.Helper()

	cfg := contentapi.DefaultConfig(mock.URL(), redisClient)
	cfg.RateLimit = 0
	client, err := contentapi.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func waitIdle(t *testing.T, st *store.Store) store.Snapshot {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := st.Snapshot(); snap.State.Status == store.StatusIdle {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("store did not become idle")
	return store.Snapshot{}
}

// TestFullListingFlow drives a store through filter changes against a
// Redis-cached content client.
func TestFullListingFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockContent(testutil.GenerateItems(40, "go", "rust"))
	defer mock.Close()

	client := newClient(t, mock, redisClient)
	fetcher := listing.NewFetcher(client, 12, zerolog.Nop())
	builder := navigation.NewBuilder("/blog", navigation.FilteredStrategy{})

	ctx := context.Background()
	initial := fetcher.FetchNow(ctx, listing.Filter{Page: 1})
	if initial.PageCount != 4 {
		t.Fatalf("Expected 4 pages, got %d", initial.PageCount)
	}

	var pushed []string
	logger := zerolog.Nop()
	st, err := store.NewFromAddress("/blog", initial, store.Config{
		Builder:   builder,
		Fetcher:   fetcher,
		Navigator: store.NavigatorFunc(func(address string) { pushed = append(pushed, address) }),
		Logger:    &logger,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()

	st.SelectCategory("go")
	snap := waitIdle(t, st)
	if snap.Address != "/blog?category=go" || snap.State.Result.PageCount != 2 {
		t.Errorf("Unexpected snapshot after category: %s, %d pages", snap.Address, snap.State.Result.PageCount)
	}

	st.SelectPage(2)
	snap = waitIdle(t, st)
	if len(snap.State.Result.Items) != 8 {
		t.Errorf("Expected 8 items on page 2, got %d", len(snap.State.Result.Items))
	}

	requests := mock.RequestCount()

	// Returning to a page already seen is served from Redis.
	if err := st.Navigate("/blog?category=go"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	snap = waitIdle(t, st)
	if snap.State.Filter.Page != 1 || len(snap.State.Result.Items) != 12 {
		t.Errorf("Unexpected page after navigation: %+v", snap.State.Filter)
	}
	if mock.RequestCount() != requests {
		t.Errorf("Expected cache hit, request count went from %d to %d", requests, mock.RequestCount())
	}

	want := []string{"/blog?category=go", "/blog/page/2?category=go"}
	if len(pushed) != len(want) {
		t.Fatalf("Expected pushed addresses %v, got %v", want, pushed)
	}
	for i := range want {
		if pushed[i] != want[i] {
			t.Errorf("pushed[%d] = %s, want %s", i, pushed[i], want[i])
		}
	}
}

// TestRevalidation verifies that stale entries are revalidated with
// If-None-Match and reused on 304.
func TestRevalidation(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockContent(testutil.GenerateItems(5))
	defer mock.Close()
	mock.SetMaxAge(0)

	client := newClient(t, mock, redisClient)
	ctx := context.Background()
	q := listing.QueryFor(listing.Filter{Page: 1}, 12)

	first, err := client.FetchItems(ctx, q)
	if err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}

	second, err := client.FetchItems(ctx, q)
	if err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}

	if mock.ConditionalCount() != 1 || mock.NotModifiedCount() != 1 {
		t.Errorf("Expected one conditional 304, got %d conditional / %d not modified",
			mock.ConditionalCount(), mock.NotModifiedCount())
	}
	if len(first.Items) != len(second.Items) || first.PageCount != second.PageCount {
		t.Errorf("Revalidated result differs: %+v vs %+v", first, second)
	}
}

// TestQuotaBlocksRequests verifies that a nearly exhausted quota reported
// by the service blocks further requests without reaching it.
func TestQuotaBlocksRequests(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockContent(testutil.GenerateItems(5))
	defer mock.Close()
	mock.SetQuota(100, 3)

	client := newClient(t, mock, redisClient)
	ctx := context.Background()

	if _, err := client.FetchItems(ctx, listing.QueryFor(listing.Filter{Page: 1}, 12)); err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}

	_, err := client.FetchItems(ctx, listing.QueryFor(listing.Filter{Category: "other", Page: 1}, 12))
	if !errors.Is(err, contentapi.ErrQuotaExhausted) {
		t.Fatalf("Expected ErrQuotaExhausted, got %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("Expected 1 request, got %d", mock.RequestCount())
	}

	// The fetcher folds the failure into the empty result.
	fetcher := listing.NewFetcher(client, 12, zerolog.Nop())
	if result := fetcher.FetchNow(ctx, listing.Filter{Category: "other"}); !result.IsEmpty() || result.PageCount != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}

// TestBatchFetchAllPages warms every page of a filter through the cache.
func TestBatchFetchAllPages(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockContent(testutil.GenerateItems(50))
	defer mock.Close()

	client := newClient(t, mock, redisClient)
	cfg := pagination.DefaultConfig()
	cfg.PerPage = 10
	fetcher := pagination.NewBatchFetcher(client, cfg)

	pages, err := fetcher.FetchAllPages(context.Background(), listing.Filter{})
	if err != nil {
		t.Fatalf("FetchAllPages failed: %v", err)
	}
	if len(pages) != 5 {
		t.Fatalf("Expected 5 pages, got %d", len(pages))
	}

	purged, err := client.PurgeCache(context.Background())
	if err != nil {
		t.Fatalf("PurgeCache failed: %v", err)
	}
	if purged != 5 {
		t.Errorf("Expected 5 purged entries, got %d", purged)
	}
}
