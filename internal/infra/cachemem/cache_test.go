package cachemem

import (
	"context"
	"testing"
	"time"

	"aci/internal/domain"
)

func TestCache_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	cache := New()

	eval := domain.TrustEvaluation{AgentID: "agent-1", TotalScore: 640, Tier: domain.TierT3}
	if err := cache.Put(ctx, "agent-1", eval, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := cache.Get(ctx, "agent-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.TotalScore != 640 {
		t.Fatalf("score = %d, want 640", got.TotalScore)
	}

	if err := cache.Delete(ctx, "agent-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "agent-1"); ok {
		t.Fatal("entry survived delete")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache := New()

	eval := domain.TrustEvaluation{AgentID: "agent-1", TotalScore: 100}
	if err := cache.Put(ctx, "agent-1", eval, time.Nanosecond); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, ok, _ := cache.Get(ctx, "agent-1"); ok {
		t.Fatal("entry survived its ttl")
	}
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	cache := New()

	if err := cache.Put(ctx, "agent-1", domain.TrustEvaluation{AgentID: "agent-1"}, 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "agent-1"); !ok {
		t.Fatal("entry with zero ttl should persist")
	}
}
