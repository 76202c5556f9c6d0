package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryRateLimiterBurstThenDeny(t *testing.T) {
	l := NewMemoryRateLimiter(10, 3)
	base := time.Now()
	l.SetClock(func() time.Time { return base })
	user := uuid.New()

	for i := 0; i < 3; i++ {
		dec, err := l.Allow(context.Background(), user)
		if err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("request %d within burst was denied", i)
		}
	}

	dec, err := l.Allow(context.Background(), user)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("request past burst was allowed")
	}
	if dec.RetryAfter <= 0 {
		t.Fatalf("denied decision carries no retry hint: %v", dec.RetryAfter)
	}
}

func TestMemoryRateLimiterRefills(t *testing.T) {
	l := NewMemoryRateLimiter(60, 1) // one token per second
	now := time.Now()
	l.SetClock(func() time.Time { return now })
	user := uuid.New()

	if dec, _ := l.Allow(context.Background(), user); !dec.Allowed {
		t.Fatalf("first request denied")
	}
	if dec, _ := l.Allow(context.Background(), user); dec.Allowed {
		t.Fatalf("second immediate request allowed")
	}

	now = now.Add(1100 * time.Millisecond)
	if dec, _ := l.Allow(context.Background(), user); !dec.Allowed {
		t.Fatalf("request after refill window denied")
	}
}

func TestMemoryRateLimiterIsolatesUsers(t *testing.T) {
	l := NewMemoryRateLimiter(10, 1)
	base := time.Now()
	l.SetClock(func() time.Time { return base })
	alice, bob := uuid.New(), uuid.New()

	if dec, _ := l.Allow(context.Background(), alice); !dec.Allowed {
		t.Fatalf("alice first request denied")
	}
	if dec, _ := l.Allow(context.Background(), alice); dec.Allowed {
		t.Fatalf("alice exhausted bucket but was allowed")
	}
	if dec, _ := l.Allow(context.Background(), bob); !dec.Allowed {
		t.Fatalf("bob throttled by alice's bucket")
	}
}

func TestMemoryRateLimiterCapsAtBurst(t *testing.T) {
	l := NewMemoryRateLimiter(600, 2)
	now := time.Now()
	l.SetClock(func() time.Time { return now })
	user := uuid.New()

	// A long quiet period must not accumulate more than the burst.
	now = now.Add(time.Hour)
	allowed := 0
	for i := 0; i < 5; i++ {
		if dec, _ := l.Allow(context.Background(), user); dec.Allowed {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed %d requests after idle, want burst cap of 2", allowed)
	}
}
