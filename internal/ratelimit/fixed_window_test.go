package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterRedis(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	defer limiter.Close()
	ctx := context.Background()

	first := limiter.Allow(ctx, "login:10.0.0.1")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first request: %+v", first)
	}
	if !limiter.Allow(ctx, "login:10.0.0.1").Allowed {
		t.Fatalf("second request should pass")
	}
	blocked := limiter.Allow(ctx, "login:10.0.0.1")
	if blocked.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if blocked.RetryAfter <= 0 || blocked.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", blocked.RetryAfter)
	}
	if !limiter.Allow(ctx, "login:10.0.0.2").Allowed {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterNextWindow(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	base := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()
	if !limiter.Allow(ctx, "register").Allowed {
		t.Fatalf("first request should pass")
	}
	if limiter.Allow(ctx, "register").Allowed {
		t.Fatalf("second request in window should be blocked")
	}
	limiter.now = func() time.Time { return base.Add(time.Minute) }
	if !limiter.Allow(ctx, "register").Allowed {
		t.Fatalf("next window should reset quota")
	}
	if !redis.Exists(defaultPrefix + ":register:" + strconv.FormatInt(base.UnixMilli()/60000, 10)) {
		t.Fatalf("expected default key prefix, keys: %v", redis.Keys())
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	redis.Close()
	if limiter.Allow(context.Background(), "ip-1").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterConstructorRules(t *testing.T) {
	if l, err := NewRedisFixedWindowLimiter("", "", "x", 1, time.Second); err == nil || l != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
	if _, err := NewRedisFixedWindowLimiter("127.0.0.1:6379", "", "x", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}

