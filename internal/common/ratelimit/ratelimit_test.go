package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"coderunner/internal/common/cache"
	appErr "coderunner/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

func newLimiter(t *testing.T, max int) (*Service, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewService(c, Config{Window: time.Minute, MaxRequests: max, RedisTimeout: time.Second}), srv
}

func TestAllowWithinWindow(t *testing.T) {
	limiter, _ := newLimiter(t, 3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("request %d rejected: %v", i, err)
		}
	}
	err := limiter.Allow(ctx, "10.0.0.1")
	if appErr.GetCode(err) != appErr.TooManyRequests {
		t.Fatalf("expected TooManyRequests, got %v", err)
	}
	if err := limiter.Allow(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("other subjects have their own budget: %v", err)
	}
}

func TestWindowResets(t *testing.T) {
	limiter, srv := newLimiter(t, 1)
	ctx := context.Background()
	if err := limiter.Allow(ctx, "ip"); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	if err := limiter.Allow(ctx, "ip"); err == nil {
		t.Fatal("second request should be rejected")
	}
	srv.FastForward(time.Minute + time.Second)
	if err := limiter.Allow(ctx, "ip"); err != nil {
		t.Fatalf("request after window rejected: %v", err)
	}
}

func TestLostExpiryIsRestored(t *testing.T) {
	limiter, srv := newLimiter(t, 10)
	ctx := context.Background()
	if err := srv.Set("coderunner:rate:ip", "1"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := limiter.Allow(ctx, "ip"); err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if ttl := srv.TTL("coderunner:rate:ip"); ttl <= 0 {
		t.Fatalf("expected expiry to be restored, got %s", ttl)
	}
}

type brokenCounters struct{}

func (brokenCounters) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}
func (brokenCounters) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (brokenCounters) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, nil
}
func (brokenCounters) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func TestStoreFailureIsCacheError(t *testing.T) {
	limiter := NewService(brokenCounters{}, Config{})
	if err := limiter.Allow(context.Background(), "ip"); appErr.GetCode(err) != appErr.CacheError {
		t.Fatalf("expected CacheError, got %v", err)
	}
	if limiter.Window() != DefaultWindow {
		t.Fatalf("default window = %s", limiter.Window())
	}
}
