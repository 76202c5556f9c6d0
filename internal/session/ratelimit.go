package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimiter meters message submissions per user. The Redis-backed
// implementation is shared across tabs and processes; this in-memory one
// covers tests and redis-less deployments.
type RateLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID) (Decision, error)
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

// MemoryRateLimiter is a per-user token bucket guarded by one mutex.
type MemoryRateLimiter struct {
	ratePerSec float64
	burst      float64

	mu  sync.Mutex
	m   map[uuid.UUID]*tokenBucket
	now func() time.Time
}

func NewMemoryRateLimiter(ratePerMinute float64, burst int) *MemoryRateLimiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 10
	}
	if burst <= 0 {
		burst = 3
	}
	return &MemoryRateLimiter{
		ratePerSec: ratePerMinute / 60.0,
		burst:      float64(burst),
		m:          make(map[uuid.UUID]*tokenBucket),
		now:        time.Now,
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, userID uuid.UUID) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.m[userID]
	if !ok {
		b = &tokenBucket{tokens: l.burst, last: now}
		l.m[userID] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.ratePerSec
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true}, nil
	}

	deficit := 1 - b.tokens
	wait := time.Duration(deficit/l.ratePerSec*float64(time.Second)) + time.Millisecond
	return Decision{Allowed: false, RetryAfter: wait}, nil
}

// SetClock overrides the time source; test hook.
func (l *MemoryRateLimiter) SetClock(now func() time.Time) { l.now = now }
