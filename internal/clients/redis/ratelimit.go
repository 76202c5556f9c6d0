package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
	"github.com/lumenlms/tutor-backend/internal/session"
)

// rateLimitScript is a token bucket evaluated atomically server-side, so
// every tab and every replica draws from the same per-user bucket.
//
// KEYS[1] bucket hash, ARGV: rate_per_sec, burst, now_unix_micro.
// Returns {allowed, wait_micros}.
var rateLimitScript = goredis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call('HMGET', KEYS[1], 'tokens', 'last')
local tokens = tonumber(bucket[1])
local last = tonumber(bucket[2])
if tokens == nil then
  tokens = burst
  last = now
end

local elapsed = (now - last) / 1000000.0
if elapsed > 0 then
  tokens = math.min(burst, tokens + elapsed * rate)
  last = now
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  wait = math.ceil((1 - tokens) / rate * 1000000)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last', last)
redis.call('EXPIRE', KEYS[1], math.ceil(burst / rate) + 60)
return {allowed, wait}
`)

// RateLimiter meters message submissions through a shared redis bucket.
type RateLimiter struct {
	log        *logger.Logger
	rdb        *goredis.Client
	ratePerSec float64
	burst      int
}

func NewRateLimiter(log *logger.Logger, rdb *goredis.Client, ratePerMinute float64, burst int) *RateLimiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 10
	}
	if burst <= 0 {
		burst = 3
	}
	return &RateLimiter{
		log:        log.With("service", "RedisRateLimiter"),
		rdb:        rdb,
		ratePerSec: ratePerMinute / 60.0,
		burst:      burst,
	}
}

func (l *RateLimiter) Allow(ctx context.Context, userID uuid.UUID) (session.Decision, error) {
	key := fmt.Sprintf("session:ratelimit:%s", userID)
	res, err := rateLimitScript.Run(ctx, l.rdb, []string{key},
		l.ratePerSec, l.burst, time.Now().UnixMicro()).Int64Slice()
	if err != nil {
		return session.Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return session.Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return session.Decision{Allowed: true}, nil
	}
	return session.Decision{
		Allowed:    false,
		RetryAfter: time.Duration(res[1]) * time.Microsecond,
	}, nil
}
