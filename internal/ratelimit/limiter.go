// Package ratelimit bounds manual provisioning requests per client
// address on a fixed rolling window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultWindow is the rolling window applied when none is configured.
const DefaultWindow = 60 * time.Second

// Limiter answers whether one more request from key is allowed inside
// the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type windowCounter struct {
	count       int
	windowStart time.Time
}

// MemoryLimiter is a mutex-guarded in-process limiter. It replaces the
// ambient shared-memory counter pattern with a single owned map so
// concurrent increments are safe.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		counters: make(map[string]*windowCounter),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	counter, ok := l.counters[key]
	if !ok || now.Sub(counter.windowStart) >= l.window {
		counter = &windowCounter{windowStart: now}
		l.counters[key] = counter
	}

	if counter.count >= l.limit {
		return false, nil
	}
	counter.count++
	return true, nil
}

// RedisLimiter shares the counter across replicas via INCR with a
// window-length expiry on first increment.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "provio:ratelimit:",
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.prefix + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr %s: %w", key, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: expire %s: %w", key, err)
		}
	}

	return count <= int64(l.limit), nil
}
