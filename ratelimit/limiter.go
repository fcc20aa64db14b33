// Package ratelimit throttles message sends per user, in redis when one is
// configured and in process otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter reports whether one more event for key fits in its budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// slidingWindow keeps one sorted-set entry per accepted event and trims
// entries older than the window before counting.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current = redis.call('ZCARD', key)
	if current >= limit then
		return 0
	end

	local counter = redis.call('INCR', counter_key)
	redis.call('ZADD', key, now, now .. ':' .. counter)
	local expire_seconds = math.ceil(window_ms / 1000)
	redis.call('EXPIRE', key, expire_seconds)
	redis.call('EXPIRE', counter_key, expire_seconds)
	return 1
`)

// RedisLimiter implements sliding window rate limiting shared by every
// process pointed at the same redis.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
}

// NewRedisLimiter allows limit events per window for each key.
func NewRedisLimiter(client *redis.Client, keyPrefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}
}

// Allow records an event for key if the window has room for it.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-l.window)

	allowed, err := slidingWindow.Run(ctx, l.client, l.keys(key),
		now.UnixMilli(), windowStart.UnixMilli(), l.limit, l.window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis script error: %w", err)
	}
	return allowed == 1, nil
}

// Reset clears the history of key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.keys(key)...).Err()
}

// keys returns the sorted set and counter keys of key. The hash tag keeps
// both in one cluster slot.
func (l *RedisLimiter) keys(key string) []string {
	base := l.keyPrefix + "{" + key + "}"
	return []string{base, base + ":counter"}
}

// pruneAbove is the number of tracked keys past which idle buckets are dropped.
const pruneAbove = 1024

// LocalLimiter is a token bucket per key kept in memory.
type LocalLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLocalLimiter allows bursts of burst events, refilled over window.
func NewLocalLimiter(burst int, window time.Duration) *LocalLimiter {
	if burst <= 0 {
		burst = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &LocalLimiter{
		limit:   rate.Limit(float64(burst) / window.Seconds()),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow takes a token from the bucket of key.
func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= pruneAbove {
			l.pruneLocked()
		}
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = bucket
	}
	return bucket.Allow(), nil
}

// pruneLocked drops buckets that have refilled completely; recreating them
// gives the same answer.
func (l *LocalLimiter) pruneLocked() {
	now := time.Now()
	for key, bucket := range l.buckets {
		if bucket.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// New returns a redis limiter when redisURL is set and reachable, an
// in-process one otherwise. The returned close function releases the
// redis client.
func New(ctx context.Context, redisURL string, burst int, window time.Duration) (Limiter, func() error, error) {
	if redisURL == "" {
		return NewLocalLimiter(burst, window), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.Printf("Redis unavailable (%v), rate limiting in process", err)
		return NewLocalLimiter(burst, window), func() error { return nil }, nil
	}
	log.Printf("Rate limiting via redis at %s", opts.Addr)
	return NewRedisLimiter(client, "roomchat:ratelimit:", burst, window), client.Close, nil
}
