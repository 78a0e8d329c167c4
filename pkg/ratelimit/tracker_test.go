package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name          string
		limit         string
		remaining     string
		reset         string
		wantNil       bool
		wantErr       bool
		wantRemaining int
		wantLimit     int
		wantHealthy   bool
	}{
		{
			name: "healthy", limit: "600", remaining: "540", reset: "60",
			wantRemaining: 540, wantLimit: 600, wantHealthy: true,
		},
		{
			name: "warning", remaining: "15", reset: "30",
			wantRemaining: 15, wantHealthy: false,
		},
		{
			name: "at healthy threshold", remaining: "50", reset: "60",
			wantRemaining: 50, wantHealthy: true,
		},
		{name: "no quota headers", wantNil: true},
		{name: "invalid remaining", remaining: "many", reset: "60", wantErr: true},
		{name: "invalid reset", remaining: "10", reset: "soon", wantErr: true},
		{name: "missing reset", remaining: "10", wantErr: true},
		{name: "invalid limit", limit: "x", remaining: "10", reset: "60", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.limit != "" {
				headers.Set(HeaderLimit, tt.limit)
			}
			if tt.remaining != "" {
				headers.Set(HeaderRemaining, tt.remaining)
			}
			if tt.reset != "" {
				headers.Set(HeaderReset, tt.reset)
			}

			state, err := ParseHeaders(headers)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if state != nil {
					t.Errorf("expected nil state, got %+v", state)
				}
				return
			}
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemaining)
			}
			if state.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", state.Limit, tt.wantLimit)
			}
			if state.IsHealthy != tt.wantHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.wantHealthy)
			}
		})
	}
}

func TestUpdateFromHeaders_InvalidHeaders(t *testing.T) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(nil, "content", logger)

	tests := []struct {
		name        string
		remaining   string
		reset       string
		shouldError bool
	}{
		{name: "missing remaining header", reset: "60", shouldError: false},
		{name: "invalid remaining header", remaining: "invalid", reset: "60", shouldError: true},
		{name: "invalid reset header", remaining: "100", reset: "invalid", shouldError: true},
		{name: "both headers missing", shouldError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.remaining != "" {
				headers.Set(HeaderRemaining, tt.remaining)
			}
			if tt.reset != "" {
				headers.Set(HeaderReset, tt.reset)
			}

			err := tracker.UpdateFromHeaders(context.Background(), headers)
			if tt.shouldError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestNewTracker_Key(t *testing.T) {
	tracker := NewTracker(nil, "content", zerolog.Nop())
	if tracker.Key() != "listing:quota:content" {
		t.Errorf("Key() = %q", tracker.Key())
	}
	if tracker.throttleDelay != DefaultThrottleDelay {
		t.Errorf("throttleDelay = %v, want %v", tracker.throttleDelay, DefaultThrottleDelay)
	}
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 14})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestTracker_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, "content", zerolog.Nop()).WithThrottleDelay(10 * time.Millisecond)
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 100 || !state.IsHealthy {
		t.Errorf("default state = %+v", state)
	}

	headers := http.Header{}
	headers.Set(HeaderLimit, "600")
	headers.Set(HeaderRemaining, "12")
	headers.Set(HeaderReset, "30")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Limit != 600 || state.Remaining != 12 {
		t.Errorf("state = %+v", state)
	}

	start := time.Now()
	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil || !allowed {
		t.Fatalf("ShouldAllowRequest() = %v, %v", allowed, err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("warning band should throttle")
	}

	headers.Set(HeaderRemaining, "1")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	allowed, err = tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("critical band should block")
	}

	if ttl := client.TTL(ctx, tracker.Key()).Val(); ttl <= 0 || ttl > 91*time.Second {
		t.Errorf("state TTL = %v, want reset window plus a minute", ttl)
	}
}

func TestTracker_ThrottleHonoursContext(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, "content", zerolog.Nop()).WithThrottleDelay(time.Hour)

	headers := http.Header{}
	headers.Set(HeaderRemaining, "10")
	headers.Set(HeaderReset, "60")
	if err := tracker.UpdateFromHeaders(context.Background(), headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if allowed || err == nil {
		t.Errorf("ShouldAllowRequest() = %v, %v; want false with context error", allowed, err)
	}
}
