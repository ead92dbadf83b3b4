package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2025-06-15T12:00:00Z")
	clock := func() time.Time { return now }
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: clock})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "client:a", 3, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d denied under limit", i+1)
		}
		if decision.Remaining != 3-(i+1) {
			t.Errorf("request %d remaining = %d", i+1, decision.Remaining)
		}
	}

	decision, err := limiter.Allow(ctx, "client:a", 3, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Allowed {
		t.Fatal("fourth request allowed over limit")
	}
	if decision.Remaining != 0 {
		t.Errorf("remaining = %d", decision.Remaining)
	}
	if !decision.ResetAt.Equal(now.Add(time.Minute)) {
		t.Errorf("reset at = %s", decision.ResetAt)
	}
}

func TestMemoryLimiterWindowRollover(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2025-06-15T12:00:00Z")
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }})
	ctx := context.Background()

	if d, _ := limiter.Allow(ctx, "client:a", 1, time.Minute); !d.Allowed {
		t.Fatal("first request denied")
	}
	if d, _ := limiter.Allow(ctx, "client:a", 1, time.Minute); d.Allowed {
		t.Fatal("second request in the same window allowed")
	}

	now = now.Add(61 * time.Second)
	if d, _ := limiter.Allow(ctx, "client:a", 1, time.Minute); !d.Allowed {
		t.Fatal("request in a fresh window denied")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryLimiterConfig{})
	ctx := context.Background()

	if d, _ := limiter.Allow(ctx, "client:a", 1, time.Minute); !d.Allowed {
		t.Fatal("first key denied")
	}
	if d, _ := limiter.Allow(ctx, "client:b", 1, time.Minute); !d.Allowed {
		t.Fatal("second key throttled by first key's traffic")
	}
}

func TestMemoryLimiterCapacity(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2025-06-15T12:00:00Z")
	limiter := NewMemoryLimiter(MemoryLimiterConfig{
		Now:     func() time.Time { return now },
		MaxKeys: 2,
	})
	ctx := context.Background()

	limiter.Allow(ctx, "client:a", 5, time.Minute)
	limiter.Allow(ctx, "client:b", 5, time.Minute)
	if _, err := limiter.Allow(ctx, "client:c", 5, time.Minute); err == nil {
		t.Fatal("expected capacity error with no expirable buckets")
	}
}

func TestMemoryLimiterZeroLimitBypasses(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryLimiterConfig{})
	decision, err := limiter.Allow(context.Background(), "client:a", 0, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Allowed {
		t.Fatal("zero limit must bypass enforcement")
	}
}
