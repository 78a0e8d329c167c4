package ratelimit

import (
	"testing"
	"time"
)

func TestQuotaState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *QuotaState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &QuotaState{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &QuotaState{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestQuotaState_Gating(t *testing.T) {
	tests := []struct {
		name           string
		remaining      int
		resetAt        time.Time
		expectBlock    bool
		expectThrottle bool
	}{
		{
			name:      "healthy",
			remaining: 100,
			resetAt:   time.Now().Add(time.Minute),
		},
		{
			name:      "at warning threshold",
			remaining: QuotaThresholdWarning,
			resetAt:   time.Now().Add(time.Minute),
		},
		{
			name:           "below warning threshold",
			remaining:      QuotaThresholdWarning - 1,
			resetAt:        time.Now().Add(time.Minute),
			expectThrottle: true,
		},
		{
			name:           "at critical threshold",
			remaining:      QuotaThresholdCritical,
			resetAt:        time.Now().Add(time.Minute),
			expectThrottle: true,
		},
		{
			name:        "below critical threshold",
			remaining:   QuotaThresholdCritical - 1,
			resetAt:     time.Now().Add(time.Minute),
			expectBlock: true,
		},
		{
			name:        "exhausted",
			remaining:   0,
			resetAt:     time.Now().Add(time.Minute),
			expectBlock: true,
		},
		{
			name:      "exhausted but window reset",
			remaining: 0,
			resetAt:   time.Now().Add(-time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &QuotaState{Remaining: tt.remaining, ResetAt: tt.resetAt}
			if got := state.NeedsCriticalBlock(); got != tt.expectBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v (remaining=%d)", got, tt.expectBlock, tt.remaining)
			}
			if got := state.NeedsThrottling(); got != tt.expectThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v (remaining=%d)", got, tt.expectThrottle, tt.remaining)
			}
		})
	}
}

func TestQuotaState_TimeUntilReset(t *testing.T) {
	state := &QuotaState{ResetAt: time.Now().Add(5 * time.Minute)}
	diff := state.TimeUntilReset() - 5*time.Minute
	if diff < -time.Second || diff > time.Second {
		t.Errorf("TimeUntilReset() = %v, want about 5m", state.TimeUntilReset())
	}

	past := &QuotaState{ResetAt: time.Now().Add(-5 * time.Minute)}
	if got := past.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0 for past reset", got)
	}
}

func TestQuotaState_UpdateHealth(t *testing.T) {
	tests := []struct {
		remaining int
		healthy   bool
	}{
		{remaining: 100, healthy: true},
		{remaining: QuotaThresholdHealthy, healthy: true},
		{remaining: QuotaThresholdHealthy - 1, healthy: false},
		{remaining: 3, healthy: false},
	}

	for _, tt := range tests {
		state := &QuotaState{Remaining: tt.remaining}
		state.UpdateHealth()
		if state.IsHealthy != tt.healthy {
			t.Errorf("UpdateHealth() remaining=%d: IsHealthy = %v, want %v", tt.remaining, state.IsHealthy, tt.healthy)
		}
	}
}

func TestDefaultState(t *testing.T) {
	state := DefaultState()
	if !state.IsHealthy || state.NeedsCriticalBlock() || state.NeedsThrottling() {
		t.Errorf("default state should allow requests: %+v", state)
	}
}

func TestThresholdConstants(t *testing.T) {
	if QuotaThresholdCritical >= QuotaThresholdWarning {
		t.Errorf("QuotaThresholdCritical (%d) must be less than QuotaThresholdWarning (%d)",
			QuotaThresholdCritical, QuotaThresholdWarning)
	}
	if QuotaThresholdWarning >= QuotaThresholdHealthy {
		t.Errorf("QuotaThresholdWarning (%d) must be less than QuotaThresholdHealthy (%d)",
			QuotaThresholdWarning, QuotaThresholdHealthy)
	}
}
