package services

import (
	"context"
	"fmt"
	"time"
)

// WindowStore is a fixed window counter backend, see redisstore.RateRepo
type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Rate limited actions
const (
	ActionSignal  = "signal"
	ActionMessage = "message"
)

const rateWindow = time.Minute

// RateLimiter caps signals and messages per actor per minute. A nil limiter or
// a nil store allows everything.
type RateLimiter struct {
	store  WindowStore
	limits map[string]int
}

func NewRateLimiter(store WindowStore, signalsPerMinute, messagesPerMinute int) *RateLimiter {
	return &RateLimiter{
		store: store,
		limits: map[string]int{
			ActionSignal:  signalsPerMinute,
			ActionMessage: messagesPerMinute,
		},
	}
}

// Allow counts one action and returns a RATE_LIMITED error once the window is full
func (l *RateLimiter) Allow(ctx context.Context, action, actorID string) error {
	if l == nil || l.store == nil {
		return nil
	}
	limit := l.limits[action]
	if limit <= 0 {
		return nil
	}

	count, ttl, err := l.store.IncrementWindow(ctx, rateKey(action, actorID), rateWindow)
	if err != nil {
		return Transient("rate limiter unavailable", fmt.Errorf("increment %s window: %w", action, err))
	}
	if count > int64(limit) {
		return RateLimited(ceilSeconds(ttl))
	}
	return nil
}

func rateKey(action, actorID string) string {
	return "rate:" + action + ":min:" + actorID
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	return sec
}
