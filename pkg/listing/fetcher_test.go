package listing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFilter_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Filter
		want Filter
	}{
		{name: "zero page", in: Filter{}, want: Filter{Page: 1}},
		{name: "negative page", in: Filter{Page: -3}, want: Filter{Page: 1}},
		{name: "trims slug", in: Filter{Category: " nextjs ", Page: 2}, want: Filter{Category: "nextjs", Page: 2}},
		{name: "trims search", in: Filter{Search: "  go ", Page: 4}, want: Filter{Search: "go", Page: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestQueryFor(t *testing.T) {
	q := QueryFor(Filter{Category: "go", Page: 0}, 0)
	want := Query{Page: 1, PerPage: DefaultPerPage, Status: StatusPublished, Category: "go"}
	if q != want {
		t.Errorf("QueryFor() = %+v, want %+v", q, want)
	}
}

func TestFetcher_Fetch(t *testing.T) {
	var got Query
	source := SourceFunc(func(ctx context.Context, q Query) (PageResult, error) {
		got = q
		return PageResult{
			Items:     []Item{json.RawMessage(`{"slug":"b"}`), json.RawMessage(`{"slug":"a"}`)},
			PageCount: 4,
		}, nil
	})

	f := NewFetcher(source, 5, zerolog.Nop())
	result := <-f.Fetch(context.Background(), Filter{Category: "nextjs", Page: 2})

	if got.Page != 2 || got.PerPage != 5 || got.Category != "nextjs" || got.Status != StatusPublished {
		t.Errorf("source received %+v", got)
	}
	if result.PageCount != 4 {
		t.Errorf("PageCount = %d, want 4", result.PageCount)
	}
	if len(result.Items) != 2 || string(result.Items[0]) != `{"slug":"b"}` {
		t.Errorf("Items order not preserved: %s", result.Items)
	}
}

func TestFetcher_Fetch_DoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	source := SourceFunc(func(ctx context.Context, q Query) (PageResult, error) {
		<-release
		return EmptyResult(), nil
	})

	f := NewFetcher(source, 0, zerolog.Nop())

	start := time.Now()
	ch := f.Fetch(context.Background(), Filter{Page: 1})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Fetch blocked the caller")
	}

	close(release)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Fetch never resolved")
	}
}

func TestFetcher_Fetch_TransportFailure(t *testing.T) {
	source := SourceFunc(func(ctx context.Context, q Query) (PageResult, error) {
		return PageResult{}, errors.New("connection refused")
	})

	f := NewFetcher(source, 0, zerolog.Nop())
	result := <-f.Fetch(context.Background(), Filter{Page: 1})

	if result.Items == nil {
		t.Error("Items should be an empty slice, not nil")
	}
	if !result.IsEmpty() || result.PageCount != 0 {
		t.Errorf("failed fetch = %+v, want empty result", result)
	}
}

func TestFetcher_FetchNow_NormalizesNilItems(t *testing.T) {
	source := SourceFunc(func(ctx context.Context, q Query) (PageResult, error) {
		return PageResult{PageCount: -1}, nil
	})

	result := NewFetcher(source, 0, zerolog.Nop()).FetchNow(context.Background(), Filter{Page: 9})
	if result.Items == nil || result.PageCount != 0 {
		t.Errorf("FetchNow() = %+v, want empty result", result)
	}
}

func TestNewFetcher_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewFetcher should panic with nil source")
		}
	}()
	NewFetcher(nil, 0, zerolog.Nop())
}
