// Package ratelimit tracks the content service's request quota and gates
// outbound requests. It reads the X-RateLimit-Limit, X-RateLimit-Remaining
// and X-RateLimit-Reset headers and shares the state across instances via
// Redis.
package ratelimit

import (
	"time"
)

// Response headers carrying the upstream quota.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// RedisKeyPrefix is prepended to the service name to form the state hash key.
const RedisKeyPrefix = "listing:quota:"

// Thresholds for gating decisions.
const (
	// QuotaThresholdCritical blocks requests when remaining quota falls below this value.
	QuotaThresholdCritical = 5

	// QuotaThresholdWarning throttles requests when remaining quota falls below this value.
	QuotaThresholdWarning = 20

	// QuotaThresholdHealthy marks the state healthy at or above this value.
	QuotaThresholdHealthy = 50
)

// QuotaState is the last quota reported by the content service.
type QuotaState struct {
	// Limit is the request budget per window (X-RateLimit-Limit), 0 if unknown.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (now + X-RateLimit-Reset seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= QuotaThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// DefaultState is assumed until the service reports a quota.
func DefaultState() *QuotaState {
	now := time.Now()
	return &QuotaState{
		Remaining:  100,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state is older than maxAge.
func (s *QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Expired returns true once the reported window has reset.
func (s *QuotaState) Expired() bool {
	return !s.ResetAt.IsZero() && time.Now().After(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *QuotaState) NeedsCriticalBlock() bool {
	return !s.Expired() && s.Remaining < QuotaThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *QuotaState) NeedsThrottling() bool {
	return !s.Expired() && s.Remaining < QuotaThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *QuotaState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *QuotaState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= QuotaThresholdHealthy
}
