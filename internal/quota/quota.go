// Package quota limits how many gateway-heavy actions one client address
// may trigger per time window.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrExceeded is returned when the window is used up
var ErrExceeded = errors.New("quota exceeded")

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Err returns ErrExceeded for a denied action
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: retry in %s", ErrExceeded, d.ResetIn.Round(time.Second))
}

// Limiter counts actions per key. Refund gives back one allowed action
// that was rejected further down.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Refund(ctx context.Context, key string) error
}

// Unlimited allows everything; used when Redis is not configured
type Unlimited struct{}

// Allow always allows
func (Unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true, Limit: -1, Remaining: -1}, nil
}

// Refund does nothing
func (Unlimited) Refund(context.Context, string) error {
	return nil
}

// refundScript decrements a live window only; an expired window stays gone
var refundScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 and tonumber(redis.call("GET", KEYS[1])) > 0 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

// RedisLimiter is a fixed-window counter kept in Redis, so the limit holds
// across server instances
type RedisLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a limiter allowing limit actions per window
func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "koi-prep:quota:",
	}
}

// Allow counts one action for key
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.prefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count quota: %w", err)
	}

	count := int(incr.Val())
	reset := ttl.Val()
	if reset < 0 {
		reset = l.window
	}

	d := Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: l.limit - count,
		ResetIn:   reset,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}

// Refund returns one action to key's current window
func (l *RedisLimiter) Refund(ctx context.Context, key string) error {
	if err := refundScript.Run(ctx, l.client, []string{l.prefix + key}).Err(); err != nil {
		return fmt.Errorf("failed to refund quota: %w", err)
	}
	return nil
}
