package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/tubefeed/internal/pkg/logger"
)

// RateLimiter provides atomic window-based rate limiting in Redis. The
// counter lives in the shared store, not worker memory, so multiple
// enrichment workers cannot collectively exceed the upstream quota.
type RateLimiter struct {
	redis *redis.Client

	// Pre-compiled Lua script: check-then-increment must be atomic or
	// concurrent workers race past the limit.
	limitScript *redis.Script
}

// The script denies without incrementing when the counter is at the limit,
// and sets the window TTL only on the first increment.
const limitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

// NewRateLimiter creates a rate limiter over an existing Redis client.
func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:       redisClient,
		limitScript: redis.NewScript(limitLuaScript),
	}
}

// Allow checks and consumes one slot under `limit per window` for the given
// scope. Keys bucket by window start, e.g. rate_limit:youtube:shared:1712345.
func (r *RateLimiter) Allow(ctx context.Context, api, scope string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	windowSec := int(window.Seconds())
	if windowSec < 1 {
		windowSec = 1
	}
	bucket := time.Now().Unix() / int64(windowSec)
	key := fmt.Sprintf("rate_limit:%s:%s:%d", api, scope, bucket)

	result, err := r.limitScript.Run(ctx, r.redis, []string{key}, limit, windowSec*2).Slice()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	allowed := result[0].(int64) == 1
	return allowed, nil
}

// Wait blocks until a slot is available or ctx expires. Polling at a
// fraction of the window keeps wakeup latency small without hammering Redis.
func (r *RateLimiter) Wait(ctx context.Context, api, scope string, limit int, window time.Duration) error {
	poll := window / 4
	if poll < 50*time.Millisecond {
		poll = 50 * time.Millisecond
	}
	for {
		allowed, err := r.Allow(ctx, api, scope, limit, window)
		if err != nil {
			// Redis being down should not halt the pipeline; log and let the
			// upstream 429 path handle overruns.
			logger.Warn("rate limiter unavailable, allowing request", "api", api, "error", err)
			return nil
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
