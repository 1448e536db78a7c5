// Package ratelimit caps how many design requests one client may send per
// window. The Redis limiter shares counts between replicas; the memory
// limiter serves a single process.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// windowStart returns the start of the fixed window containing t
func windowStart(t time.Time, window time.Duration) time.Time {
	return t.Truncate(window)
}

// RedisLimiter is a fixed-window counter stored in Redis
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter connects to Redis and returns a limiter allowing limit
// requests per window
func NewRedisLimiter(ctx context.Context, address, password string, db, limit int, window time.Duration) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
		now:    time.Now,
	}, nil
}

// Allow increments the caller's counter for the current window
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	start := windowStart(l.now(), l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, start.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}

	return incr.Val() <= int64(l.limit), nil
}

// HealthCheck verifies Redis connectivity
func (l *RedisLimiter) HealthCheck(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

type counter struct {
	start time.Time
	count int
}

// MemoryLimiter is a fixed-window counter kept in process memory. Old
// windows are dropped by Sweep.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewMemoryLimiter returns a limiter allowing limit requests per window
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*counter),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow counts the request against key's current window
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	start := windowStart(l.now(), l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok || !c.start.Equal(start) {
		c = &counter{start: start}
		l.counters[key] = c
	}
	c.count++
	return c.count <= l.limit, nil
}

// Sweep drops counters from past windows and returns how many it removed
func (l *MemoryLimiter) Sweep(_ context.Context) (int, error) {
	current := windowStart(l.now(), l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, c := range l.counters {
		if c.start.Before(current) {
			delete(l.counters, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("rate limit counters swept", "removed", removed, "remaining", len(l.counters))
	}
	return removed, nil
}

// Len returns the number of tracked keys
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
