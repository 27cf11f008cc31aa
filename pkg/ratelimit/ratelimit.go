// Package ratelimit paces outbound fan-out so sends stay under the
// transport's throughput limits.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/filegate/backend/internal/metrics"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrWaitCancelled is returned when the context ends before a send slot
	// opens. It wraps the context error.
	ErrWaitCancelled = errors.New("send slot wait cancelled")
	// ErrLimiterUnavailable is returned when the shared pacing state cannot
	// be read or written. It wraps the Redis error.
	ErrLimiterUnavailable = errors.New("send pacing unavailable")
)

const keyPrefix = "filegate:pace:"

type Limiter interface {
	Acquire(ctx context.Context) error
}

// paceScript keeps one value per key: the theoretical arrival time (TAT)
// of the next send, in unix milliseconds. A send is admitted while the
// TAT after it stays within burst intervals of now. The reply is the
// number of milliseconds to wait, 0 when the slot was taken.
const paceScript = `
local interval = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tat = tonumber(redis.call("GET", KEYS[1])) or now
if tat < now then
  tat = now
end

local next_tat = tat + interval
local earliest = next_tat - window
if earliest > now then
  return earliest - now
end

redis.call("SET", KEYS[1], next_tat, "PX", next_tat - now)
return 0
`

// RedisLimiter paces sends through a Redis key, so every replica pointing
// at the same key draws from one budget of rate sends per second with up
// to burst sends back to back.
type RedisLimiter struct {
	rdb      redis.Scripter
	key      string
	interval int64
	window   int64
	script   *redis.Script
}

// NewRedisLimiter paces the named stream. A non-positive rate or burst
// disables pacing.
func NewRedisLimiter(rdb redis.Scripter, name string, rate float64, burst float64) *RedisLimiter {
	if name == "" {
		name = "broadcast"
	}
	limiter := &RedisLimiter{
		rdb:    rdb,
		key:    keyPrefix + name,
		script: redis.NewScript(paceScript),
	}
	if rate > 0 && burst > 0 {
		limiter.interval = int64(math.Ceil(1000 / rate))
		limiter.window = limiter.interval * int64(math.Max(1, math.Floor(burst)))
	}
	return limiter
}

func (r *RedisLimiter) Acquire(ctx context.Context) error {
	if r == nil || r.interval <= 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
	}()

	var timer *time.Timer
	for {
		wait, err := r.reserve(ctx)
		if err != nil {
			metrics.RateLimitDecisionsTotal.WithLabelValues("error").Inc()
			return err
		}
		if wait <= 0 {
			metrics.RateLimitDecisionsTotal.WithLabelValues("granted").Inc()
			return nil
		}
		metrics.RateLimitDecisionsTotal.WithLabelValues("throttled").Inc()

		if timer == nil {
			timer = time.NewTimer(wait)
			defer timer.Stop()
		} else {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrWaitCancelled, ctx.Err())
		case <-timer.C:
		}
	}
}

// reserve takes a slot if one is open and otherwise reports how long until
// the next one.
func (r *RedisLimiter) reserve(ctx context.Context) (time.Duration, error) {
	waitMs, err := r.script.Run(ctx, r.rdb, []string{r.key}, r.interval, r.window, time.Now().UnixMilli()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrLimiterUnavailable, r.key, err)
	}
	return time.Duration(waitMs) * time.Millisecond, nil
}

// IntervalLimiter spaces acquisitions at least interval apart within one
// process. It is the fallback when Redis is not configured.
type IntervalLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	return &IntervalLimiter{interval: interval}
}

func (l *IntervalLimiter) Acquire(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWaitCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
