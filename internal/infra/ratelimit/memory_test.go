package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_WindowExhaustion(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }})

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "agent-1:trust", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if decision.Remaining != 3-i-1 {
			t.Fatalf("remaining = %d, want %d", decision.Remaining, 3-i-1)
		}
	}

	decision, err := limiter.Allow(ctx, "agent-1:trust", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("fourth request in window should be denied")
	}
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }})

	if _, err := limiter.Allow(ctx, "k", 1, time.Minute); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision, _ := limiter.Allow(ctx, "k", 1, time.Minute); decision.Allowed {
		t.Fatal("second request should be denied")
	}

	now = now.Add(2 * time.Minute)
	decision, err := limiter.Allow(ctx, "k", 1, time.Minute)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("request after window reset should be allowed")
	}
}

func TestMemoryLimiter_IndependentKeys(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(MemoryLimiterConfig{})

	if _, err := limiter.Allow(ctx, "a", 1, time.Minute); err != nil {
		t.Fatalf("allow: %v", err)
	}
	decision, err := limiter.Allow(ctx, "b", 1, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("keys must not share buckets")
	}
}

func TestMemoryLimiter_ZeroLimitDisables(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(MemoryLimiterConfig{})
	decision, err := limiter.Allow(ctx, "k", 0, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("zero limit should disable limiting")
	}
}
