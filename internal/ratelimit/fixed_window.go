package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "floodwatch:ratelimit"

// Returns {count, pttl}. The first hit in a window sets its expiry.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// FixedWindowLimiter counts hits per key in fixed windows shared through Redis.
// Redis failures fail closed.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time

	client *redis.Client
}

// NewRedisFixedWindowLimiter creates a Redis-backed limiter allowing limit hits
// per window for every key.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		prefix: prefix,
		now:    time.Now,
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}, nil
}

// Allow records one hit for key and reports whether it is within quota.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	vals, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil || len(vals) != 2 {
		return Decision{RetryAfter: time.Second}
	}
	count, ttl := vals[0], vals[1]
	if count <= int64(l.limit) {
		return Decision{Allowed: true, Remaining: l.limit - int(count)}
	}
	retry := time.Duration(ttl) * time.Millisecond
	if retry <= 0 {
		retry = l.window
	}
	return Decision{RetryAfter: retry}
}

// Close releases the Redis connection pool.
func (l *FixedWindowLimiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
