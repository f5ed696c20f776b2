package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/newsletter-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultTriagePerSecond int64 = 50
	rateLimitKeyPrefix           = "newsletter:ratelimit"
	rateLimitWindow              = time.Second
	minRetryAfter                = time.Millisecond
)

// Counts hits in the key's window and keeps the key one window past its first
// hit. Returns 1 when the hit fits under the limit.
var windowHitScript = goredis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if hits > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.Limiter = (*RateLimiter)(nil)

// RateLimiter caps triage throughput across every worker process with a
// fixed one-second window per scope. Waiters sleep until the next window.
type RateLimiter struct {
	client    *goredis.Client
	perSecond int64
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRateLimiter(client *goredis.Client, perSecond int) (*RateLimiter, error) {
	return newRateLimiter(client, int64(perSecond), time.Now, sleepContext)
}

func newRateLimiter(
	client *goredis.Client,
	perSecond int64,
	now func() time.Time,
	sleep func(ctx context.Context, d time.Duration) error,
) (*RateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if perSecond <= 0 {
		perSecond = defaultTriagePerSecond
	}
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = sleepContext
	}

	return &RateLimiter{client: client, perSecond: perSecond, now: now, sleep: sleep}, nil
}

func (r *RateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	allowed, _, err := r.hit(ctx, scope)
	return allowed, err
}

// Wait blocks until scope has room in a window or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context, scope string) error {
	for {
		allowed, retryAfter, err := r.hit(ctx, scope)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if err := r.sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
}

// hit records one request and, when it is over the limit, how long until the
// current window closes.
func (r *RateLimiter) hit(ctx context.Context, scope string) (bool, time.Duration, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		return false, 0, fmt.Errorf("rate limit scope is required")
	}

	now := r.now().UTC()
	windowStart := now.Truncate(rateLimitWindow)
	key := fmt.Sprintf("%s:%s:%d", rateLimitKeyPrefix, scope, windowStart.Unix())

	ok, err := windowHitScript.Run(ctx, r.client, []string{key}, r.perSecond, rateLimitWindow.Milliseconds()).Int()
	if err != nil {
		return false, 0, fmt.Errorf("failed to evaluate rate limit for %q: %w", scope, err)
	}
	if ok == 1 {
		return true, 0, nil
	}

	return false, max(windowStart.Add(rateLimitWindow).Sub(now), minRetryAfter), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
