// Package ratelimit provides request counting in fixed windows shared through Redis,
// so every server instance enforces the same budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default limiter configuration values.
const (
	DefaultLimit  = 30
	DefaultWindow = time.Minute
	DefaultPrefix = "rl:"
)

// allowScript increments the window counter and reports whether it is still within the limit.
// KEYS[1] window key, ARGV[1] limit, ARGV[2] key TTL in milliseconds.
var allowScript = redis.NewScript(`
	local used = redis.call('INCR', KEYS[1])
	if used == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	if used > tonumber(ARGV[1]) then
		return {0, used}
	end
	return {1, used}
`)

// WindowLimiter allows at most Limit hits per key in each aligned window.
type WindowLimiter struct {
	redis  redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// Config holds configuration for the window limiter.
type Config struct {
	// Redis is the shared counter store. Required.
	Redis redis.Cmdable

	// Prefix namespaces the counter keys. Default: "rl:".
	Prefix string

	// Limit is the number of hits allowed per window. Default: 30.
	Limit int

	// Window is the counting window. Default: 1m.
	Window time.Duration
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if c.Window < 0 {
		return errors.New("window cannot be negative")
	}
	return nil
}

// NewWindowLimiter creates a limiter, applying defaults for zero values.
func NewWindowLimiter(cfg *Config) (*WindowLimiter, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l := &WindowLimiter{
		redis:  cfg.Redis,
		prefix: cfg.Prefix,
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    time.Now,
	}
	if l.prefix == "" {
		l.prefix = DefaultPrefix
	}
	if l.limit == 0 {
		l.limit = DefaultLimit
	}
	if l.window == 0 {
		l.window = DefaultWindow
	}
	return l, nil
}

// windowStart returns the start of the window containing now
func (l *WindowLimiter) windowStart() time.Time {
	return l.now().Truncate(l.window)
}

func (l *WindowLimiter) key(subject string, start time.Time) string {
	return l.prefix + subject + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}

// Allow records one hit for subject. When the window is exhausted it returns
// false and the time until the next window opens.
func (l *WindowLimiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	start := l.windowStart()
	ttl := l.window + time.Second

	result, err := allowScript.Run(ctx, l.redis, []string{l.key(subject, start)},
		l.limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	if result[0] == 1 {
		return true, 0, nil
	}
	return false, l.waitTime(start), nil
}

// waitTime returns the time until the window after start begins.
func (l *WindowLimiter) waitTime(start time.Time) time.Duration {
	wait := start.Add(l.window).Sub(l.now())
	if wait < 0 {
		wait = 0
	}
	return wait + time.Millisecond
}

// Used returns the hits recorded for subject in the current window.
func (l *WindowLimiter) Used(ctx context.Context, subject string) (int, error) {
	val, err := l.redis.Get(ctx, l.key(subject, l.windowStart())).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// Limit returns the configured hits per window.
func (l *WindowLimiter) Limit() int {
	return l.limit
}

// Window returns the configured window.
func (l *WindowLimiter) Window() time.Duration {
	return l.window
}
