package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultThrottleDelay is the pause applied in the warning band.
const DefaultThrottleDelay = 1 * time.Second

var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "content_api_quota_remaining",
		Help: "Requests remaining in the current content service quota window",
	})

	quotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "content_api_quota_blocks_total",
		Help: "Total number of requests blocked because the quota is nearly exhausted",
	})

	quotaThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "content_api_quota_throttles_total",
		Help: "Total number of requests delayed in the quota warning band",
	})
)

// Tracker monitors the content service quota and gates requests.
type Tracker struct {
	redis         redis.UniversalClient
	key           string
	throttleDelay time.Duration
	logger        zerolog.Logger
}

// NewTracker creates a tracker storing state for service under
// RedisKeyPrefix+service.
func NewTracker(redisClient redis.UniversalClient, service string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		key:           RedisKeyPrefix + service,
		throttleDelay: DefaultThrottleDelay,
		logger:        logger,
	}
}

// WithThrottleDelay sets the warning band delay.
func (t *Tracker) WithThrottleDelay(d time.Duration) *Tracker {
	t.throttleDelay = d
	return t
}

// Key returns the Redis hash key holding the state.
func (t *Tracker) Key() string {
	return t.key
}

// GetState retrieves the current quota state from Redis.
// Returns DefaultState if nothing has been recorded.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	fields, err := t.redis.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("get quota state: %w", err)
	}
	if len(fields) == 0 {
		t.logger.Debug().Msg("No quota state in Redis, returning default healthy state")
		return DefaultState(), nil
	}

	state := &QuotaState{}
	if state.Limit, err = intField(fields, "limit"); err != nil {
		return nil, err
	}
	if state.Remaining, err = intField(fields, "remaining"); err != nil {
		return nil, err
	}
	resetUnix, err := strconv.ParseInt(fields["reset_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse reset_at: %w", err)
	}
	state.ResetAt = time.Unix(resetUnix, 0)
	if state.LastUpdate, err = time.Parse(time.RFC3339Nano, fields["last_update"]); err != nil {
		return nil, fmt.Errorf("parse last_update: %w", err)
	}
	state.UpdateHealth()

	return state, nil
}

func intField(fields map[string]string, name string) (int, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}

// ParseHeaders extracts quota state from response headers. It returns
// (nil, nil) when the response carries no quota.
func ParseHeaders(headers http.Header) (*QuotaState, error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return nil, errors.New(HeaderReset + " header missing")
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	limit := 0
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return nil, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	now := time.Now()
	state := &QuotaState{
		Limit:      limit,
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders parses quota headers and stores the state in Redis.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, err := ParseHeaders(headers)
	if err != nil || state == nil {
		return err
	}

	ttl := state.TimeUntilReset() + time.Minute
	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, t.key,
		"limit", state.Limit,
		"remaining", state.Remaining,
		"reset_at", state.ResetAt.Unix(),
		"last_update", state.LastUpdate.Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, t.key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quota state in redis: %w", err)
	}

	quotaRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("content service quota CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("content service quota WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("content service quota updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent. In the
// warning band it waits throttleDelay (or until ctx is done) first.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get quota state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("content service quota critical - blocking request")
		quotaBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("content service quota warning - throttling request")
		quotaThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return true, nil
}
