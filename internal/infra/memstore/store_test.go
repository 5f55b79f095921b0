package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"aci/internal/domain"
	"aci/internal/usecase"
)

func TestFactorScoreStore_LatestKeepsNewest(t *testing.T) {
	ctx := context.Background()
	store := NewFactorScoreStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	old := domain.FactorScore{Code: domain.FactorCompetenceAccuracy, Score: 0.5, Source: domain.FactorSourceMeasured, RecordedAt: base}
	newer := domain.FactorScore{Code: domain.FactorCompetenceAccuracy, Score: 0.9, Source: domain.FactorSourceMeasured, RecordedAt: base.Add(time.Hour)}
	if err := store.Append(ctx, "agent-1", old); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "agent-1", newer); err != nil {
		t.Fatalf("append: %v", err)
	}

	latest, err := store.Latest(ctx, "agent-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got := latest[domain.FactorCompetenceAccuracy].Score; got != 0.9 {
		t.Fatalf("latest score = %v, want 0.9", got)
	}

	history, err := store.History(ctx, "agent-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
}

func TestFactorScoreStore_ListAgentsSorted(t *testing.T) {
	ctx := context.Background()
	store := NewFactorScoreStore()
	score := domain.FactorScore{Code: domain.FactorCompetenceAccuracy, Score: 0.5, Source: domain.FactorSourceMeasured, RecordedAt: time.Now()}
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if err := store.Append(ctx, id, score); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	agents, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	want := []string{"alpha", "bravo", "charlie"}
	if len(agents) != len(want) {
		t.Fatalf("agents = %v, want %v", agents, want)
	}
	for i := range want {
		if agents[i] != want[i] {
			t.Fatalf("agents = %v, want %v", agents, want)
		}
	}
}

func TestOwnershipLedger_AppendLinksChain(t *testing.T) {
	ctx := context.Background()
	ledger := NewOwnershipLedger()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := ledger.Append(ctx, domain.OwnershipRecord{
		ChainLink:    domain.ChainLink{RecordedAt: now},
		AgentID:      "agent-1",
		PrincipalID:  "alice",
		Role:         domain.RoleOwner,
		TransferType: domain.TransferCreation,
	})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.Sequence != 1 {
		t.Fatalf("first sequence = %d, want 1", first.Sequence)
	}
	if first.PrevHash != nil {
		t.Fatalf("genesis prev hash = %v, want nil", *first.PrevHash)
	}
	if first.RecordHash == "" {
		t.Fatal("genesis record hash not assigned")
	}

	second, err := ledger.Append(ctx, domain.OwnershipRecord{
		ChainLink:    domain.ChainLink{RecordedAt: now.Add(time.Minute)},
		AgentID:      "agent-1",
		PrincipalID:  "bob",
		Role:         domain.RoleOperator,
		TransferType: domain.TransferDelegation,
	})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.Sequence != 2 {
		t.Fatalf("second sequence = %d, want 2", second.Sequence)
	}
	if second.PrevHash == nil || *second.PrevHash != first.RecordHash {
		t.Fatal("second record does not link to first")
	}

	records, err := ledger.ListByAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	verification := domain.VerifyOwnershipChain(records)
	if !verification.Valid {
		t.Fatalf("chain invalid: %+v", verification)
	}
}

func TestOwnershipLedger_SequenceConflict(t *testing.T) {
	ctx := context.Background()
	ledger := NewOwnershipLedger()
	now := time.Now().UTC()

	if _, err := ledger.Append(ctx, domain.OwnershipRecord{
		ChainLink:    domain.ChainLink{RecordedAt: now},
		AgentID:      "agent-1",
		PrincipalID:  "alice",
		Role:         domain.RoleOwner,
		TransferType: domain.TransferCreation,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	_, err := ledger.Append(ctx, domain.OwnershipRecord{
		ChainLink:    domain.ChainLink{Sequence: 5, RecordedAt: now},
		AgentID:      "agent-1",
		PrincipalID:  "bob",
		Role:         domain.RoleOperator,
		TransferType: domain.TransferDelegation,
	})
	if !errors.Is(err, domain.ErrSequenceConflict) {
		t.Fatalf("err = %v, want ErrSequenceConflict", err)
	}
}

func TestActionLedger_IndependentPerAgent(t *testing.T) {
	ctx := context.Background()
	ledger := NewActionLedger()
	now := time.Now().UTC()

	for _, agentID := range []string{"agent-1", "agent-2"} {
		rec, err := ledger.Append(ctx, domain.ActionRecord{
			ChainLink:   domain.ChainLink{RecordedAt: now},
			AgentID:     agentID,
			ActionType:  domain.ActionToolCall,
			Name:        "search",
			PayloadHash: domain.SHA256Hex([]byte("q")),
		})
		if err != nil {
			t.Fatalf("append %s: %v", agentID, err)
		}
		if rec.Sequence != 1 {
			t.Fatalf("%s sequence = %d, want 1", agentID, rec.Sequence)
		}
	}
}

func TestAuditEventStore_ChainVerifies(t *testing.T) {
	ctx := context.Background()
	store := NewAuditEventStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, domain.AuditEvent{
			AgentID:    "agent-1",
			EventType:  domain.AuditEventProbeExecuted,
			Payload:    map[string]any{"probe_id": "fact-arith-001", "passed": i%2 == 0},
			ActorType:  domain.AuditActorSystem,
			TargetType: domain.AuditTargetProbe,
			TargetID:   "fact-arith-001",
			Result:     domain.AuditResultSuccess,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if err := usecase.VerifyAgentAuditChain(ctx, store, "agent-1"); err != nil {
		t.Fatalf("chain verification failed: %v", err)
	}

	events, err := store.ListByAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].PrevEventHash != zeroAuditHash {
		t.Fatalf("first prev hash = %s, want zero sentinel", events[0].PrevEventHash)
	}
	if events[1].PrevEventHash != events[0].EventHash {
		t.Fatal("second event does not link to first")
	}
}

func TestAuditEventStore_DefaultsSystemAgent(t *testing.T) {
	ctx := context.Background()
	store := NewAuditEventStore()
	stored, err := store.Append(ctx, domain.AuditEvent{
		EventType:  domain.AuditEventCircuitBreakerTripped,
		ActorType:  domain.AuditActorSystem,
		TargetType: domain.AuditTargetAgent,
		Result:     domain.AuditResultSuccess,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if stored.AgentID != domain.AuditSystemAgentID {
		t.Fatalf("agent id = %s, want system agent", stored.AgentID)
	}
	if stored.ID == "" || stored.CreatedAt.IsZero() {
		t.Fatal("id and created_at must be assigned")
	}
}

func TestProbeStateStore_StatsCopyIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewProbeStateStore()
	stats := domain.CanaryProbeStats{
		AgentID:      "agent-1",
		TotalProbes:  2,
		ProbesPassed: 1,
		ProbesFailed: 1,
		PassRate:     0.5,
		ByCategory: map[domain.ProbeCategory]domain.CategoryStats{
			domain.ProbeFactual: {Total: 2, Passed: 1},
		},
	}
	if err := store.SaveStats(ctx, stats); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Stats(ctx, "agent-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	got.ByCategory[domain.ProbeFactual] = domain.CategoryStats{Total: 99}

	again, err := store.Stats(ctx, "agent-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if again.ByCategory[domain.ProbeFactual].Total != 2 {
		t.Fatal("stored stats mutated through returned copy")
	}
}

func TestEvaluationStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	store := NewEvaluationStore()
	eval, err := store.Get(ctx, "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if eval != nil {
		t.Fatal("expected nil for unknown agent")
	}
}

func TestTierStateStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewTierStateStore()

	if _, ok, err := store.Current(ctx, "agent-1"); err != nil || ok {
		t.Fatalf("expected no tier, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "agent-1", domain.TierT2, time.Now()); err != nil {
		t.Fatalf("set: %v", err)
	}
	tier, ok, err := store.Current(ctx, "agent-1")
	if err != nil || !ok {
		t.Fatalf("current: ok=%v err=%v", ok, err)
	}
	if tier != domain.TierT2 {
		t.Fatalf("tier = %s, want T2", tier)
	}
}
