// Package ratelimit enforces fixed-window request limits on a shared counter store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"coderunner/internal/common/cache"
	appErr "coderunner/pkg/errors"
)

const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 100
	defaultTimeout     = 200 * time.Millisecond
)

// Config is the YAML surface of the limiter.
type Config struct {
	Window       time.Duration `yaml:"window"`
	MaxRequests  int           `yaml:"maxRequests"`
	RedisTimeout time.Duration `yaml:"redisTimeout"`
	KeyPrefix    string        `yaml:"keyPrefix"`
}

// Service enforces fixed-window limits using Redis.
type Service struct {
	cache   cache.CounterOps
	window  time.Duration
	max     int
	timeout time.Duration
	prefix  string
}

// NewService creates a limiter over counters.
func NewService(counters cache.CounterOps, cfg Config) *Service {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if cfg.RedisTimeout <= 0 {
		cfg.RedisTimeout = defaultTimeout
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "coderunner:rate"
	}
	return &Service{cache: counters, window: cfg.Window, max: cfg.MaxRequests, timeout: cfg.RedisTimeout, prefix: cfg.KeyPrefix}
}

// Window returns the configured window length.
func (s *Service) Window() time.Duration {
	return s.window
}

// Allow counts one request for subject and fails with TooManyRequests once
// the window's budget is spent.
func (s *Service) Allow(ctx context.Context, subject string) error {
	if s.cache == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	key := fmt.Sprintf("%s:%s", s.prefix, subject)

	ctxCache, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	acquired, err := s.cache.SetNX(ctxCache, key, 1, s.window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	var count int64 = 1
	if !acquired {
		count, err = s.cache.Incr(ctxCache, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		// a key that lost its expiry would block the subject forever
		ttl, ttlErr := s.cache.TTL(ctxCache, key)
		if ttlErr == nil && ttl < 0 {
			_ = s.cache.Expire(ctxCache, key, s.window)
		}
	}
	if int(count) > s.max {
		return appErr.New(appErr.TooManyRequests).WithMessage("Too many requests, please try again later.")
	}
	return nil
}
