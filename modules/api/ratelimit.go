package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SocketLimiter decides whether a connection may perform another socket operation.
type SocketLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Forget(key string)
}

// slidingWindowScript counts operations in a sorted set keyed by timestamp.
// The counter key keeps members unique within one millisecond.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)
	if current >= limit then
		return 0
	end

	local counter = redis.call('INCR', key .. ':counter')
	redis.call('ZADD', key, now, now .. ':' .. counter)
	local expire_seconds = math.ceil(window_ms / 1000)
	redis.call('EXPIRE', key, expire_seconds)
	redis.call('EXPIRE', key .. ':counter', expire_seconds)
	return 1
`)

// RedisLimiter is a sliding window limiter shared by every instance using the same Redis.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
}

// NewRedisLimiter creates a Redis backed limiter.
func NewRedisLimiter(client *redis.Client, keyPrefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}
}

// Allow records one operation for key if it fits in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	res, err := slidingWindowScript.Run(ctx, l.client, []string{l.keyPrefix + key},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis script error: %w", err)
	}
	return res == 1, nil
}

// Forget clears the window of key.
func (l *RedisLimiter) Forget(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = l.client.Del(ctx, l.keyPrefix+key, l.keyPrefix+key+":counter").Err()
}

// tokenBucket allows maxTokens operations in a burst and refills one token per interval.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	interval   time.Duration
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(maxTokens int, interval time.Duration, now time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		interval:   interval,
		lastRefill: now,
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elapsed := now.Sub(b.lastRefill); elapsed >= b.interval {
		refill := int(elapsed / b.interval)
		b.tokens = min(b.maxTokens, b.tokens+refill)
		b.lastRefill = b.lastRefill.Add(time.Duration(refill) * b.interval)
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// LocalLimiter keeps one token bucket per key in process memory.
type LocalLimiter struct {
	limit    int
	interval time.Duration
	buckets  sync.Map // key -> *tokenBucket
	now      func() time.Time
}

// NewLocalLimiter allows limit operations per window, refilled evenly.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit <= 0 {
		limit = 1
	}
	interval := window / time.Duration(limit)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &LocalLimiter{limit: limit, interval: interval, now: time.Now}
}

// Allow takes one token from the bucket of key.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	val, _ := l.buckets.LoadOrStore(key, newTokenBucket(l.limit, l.interval, now))
	return val.(*tokenBucket).allow(now), nil
}

// Forget drops the bucket of key.
func (l *LocalLimiter) Forget(key string) {
	l.buckets.Delete(key)
}

// fallbackLimiter prefers the shared limiter and degrades to the local one
// when Redis cannot be reached.
type fallbackLimiter struct {
	primary SocketLimiter
	local   SocketLimiter
	onError func(error)
}

func (l *fallbackLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := l.primary.Allow(ctx, key)
	if err == nil {
		return ok, nil
	}
	if l.onError != nil {
		l.onError(err)
	}
	return l.local.Allow(ctx, key)
}

func (l *fallbackLimiter) Forget(key string) {
	l.primary.Forget(key)
	l.local.Forget(key)
}
