package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"aci/internal/domain"
)

type factorRepoStub struct {
	appended []domain.FactorScore
	latest   map[string]domain.FactorScore
	agents   []string
}

func (s *factorRepoStub) Append(_ context.Context, _ string, score domain.FactorScore) error {
	s.appended = append(s.appended, score)
	return nil
}

func (s *factorRepoStub) Latest(_ context.Context, _ string) (map[string]domain.FactorScore, error) {
	return s.latest, nil
}

func (s *factorRepoStub) ListAgents(_ context.Context) ([]string, error) {
	return s.agents, nil
}

type evalRepoStub struct {
	saved map[string]domain.TrustEvaluation
}

func (s *evalRepoStub) Save(_ context.Context, eval domain.TrustEvaluation) error {
	if s.saved == nil {
		s.saved = make(map[string]domain.TrustEvaluation)
	}
	s.saved[eval.AgentID] = eval
	return nil
}

func (s *evalRepoStub) Get(_ context.Context, agentID string) (*domain.TrustEvaluation, error) {
	eval, ok := s.saved[agentID]
	if !ok {
		return nil, nil
	}
	return &eval, nil
}

func (s *evalRepoStub) ListAll(_ context.Context) ([]domain.TrustEvaluation, error) {
	out := make([]domain.TrustEvaluation, 0, len(s.saved))
	for _, eval := range s.saved {
		out = append(out, eval)
	}
	return out, nil
}

type breakerRepoStub struct {
	tripped map[string]string
}

func (s *breakerRepoStub) Trip(_ context.Context, agentID, reason string, _ time.Time) error {
	if s.tripped == nil {
		s.tripped = make(map[string]string)
	}
	s.tripped[agentID] = reason
	return nil
}

func (s *breakerRepoStub) Get(_ context.Context, agentID string) (bool, string, error) {
	reason, ok := s.tripped[agentID]
	return ok, reason, nil
}

func (s *breakerRepoStub) Reset(_ context.Context, agentID string) error {
	delete(s.tripped, agentID)
	return nil
}

type originRepoStub struct {
	records map[string]domain.OriginRecord
}

func (s *originRepoStub) Put(_ context.Context, rec domain.OriginRecord) error {
	if s.records == nil {
		s.records = make(map[string]domain.OriginRecord)
	}
	s.records[rec.AgentID] = rec
	return nil
}

func (s *originRepoStub) Get(_ context.Context, agentID string) (*domain.OriginRecord, error) {
	rec, ok := s.records[agentID]
	if !ok {
		return nil, domain.ErrOriginMissing
	}
	return &rec, nil
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func scoreAt(code string, value float64, at time.Time) domain.FactorScore {
	return domain.FactorScore{
		Code:       code,
		Score:      value,
		Confidence: 1,
		Source:     domain.FactorSourceMeasured,
		RecordedAt: at,
	}
}

func allFactorsAt(value float64, at time.Time) map[string]domain.FactorScore {
	out := make(map[string]domain.FactorScore)
	for _, code := range domain.FactorCodes() {
		out[code] = scoreAt(code, value, at)
	}
	return out
}

func TestComputeEvaluationPerfectScores(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eval := ComputeEvaluation("agent-1", allFactorsAt(1, now), domain.TierT5, 0, now)

	if eval.TotalScore != 1000 {
		t.Fatalf("total score = %d, want 1000", eval.TotalScore)
	}
	if eval.Tier != domain.TierT5 {
		t.Fatalf("tier = %s, want T5", eval.Tier)
	}
	if len(eval.BlockedDimensions) != 0 {
		t.Fatalf("blocked dimensions = %v, want none", eval.BlockedDimensions)
	}
}

func TestComputeEvaluationMissingFactorsFailClosed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	latest := map[string]domain.FactorScore{
		domain.FactorCompetenceAccuracy:  scoreAt(domain.FactorCompetenceAccuracy, 0.9, now),
		domain.FactorSafetyHarmAvoidance: scoreAt(domain.FactorSafetyHarmAvoidance, 0.8, now),
	}

	eval := ComputeEvaluation("agent-1", latest, domain.TierT5, 0, now)

	// core 0.20*0.9, life-critical 0.40*0.8, group weights 0.6/0.4.
	if eval.TotalScore != 236 {
		t.Fatalf("total score = %d, want 236", eval.TotalScore)
	}
	if eval.Tier != domain.TierT1 {
		t.Fatalf("tier = %s, want T1", eval.Tier)
	}
	wantBlocked := []string{
		domain.FactorAlignmentInstruction,
		domain.FactorBehaviorConsistency,
		domain.FactorSafetyHarmAvoidance,
		domain.FactorSafetyOversight,
		domain.FactorSafetyTruthfulness,
	}
	if len(eval.BlockedDimensions) != len(wantBlocked) {
		t.Fatalf("blocked dimensions = %v, want %v", eval.BlockedDimensions, wantBlocked)
	}
	for i, code := range wantBlocked {
		if eval.BlockedDimensions[i] != code {
			t.Fatalf("blocked[%d] = %s, want %s", i, eval.BlockedDimensions[i], code)
		}
	}
}

func TestComputeEvaluationModifierClamped(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	high := ComputeEvaluation("agent-1", allFactorsAt(1, now), domain.TierT5, 150, now)
	if high.TotalScore != 1000 {
		t.Fatalf("clamped high score = %d, want 1000", high.TotalScore)
	}

	low := ComputeEvaluation("agent-2", nil, domain.TierT0, -100, now)
	if low.TotalScore != 0 {
		t.Fatalf("clamped low score = %d, want 0", low.TotalScore)
	}
}

func TestCalculateTrustScoreAppliesOriginModifier(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	factors := &factorRepoStub{latest: map[string]domain.FactorScore{
		domain.FactorCompetenceAccuracy:  scoreAt(domain.FactorCompetenceAccuracy, 0.9, now),
		domain.FactorSafetyHarmAvoidance: scoreAt(domain.FactorSafetyHarmAvoidance, 0.8, now),
	}}
	evals := &evalRepoStub{}
	origins := &originRepoStub{}
	_ = origins.Put(context.Background(), domain.OriginRecord{
		AgentID:      "agent-1",
		CreationType: domain.CreationEvolved,
	})

	engine := NewTrustEngine(factors, evals, &breakerRepoStub{}, origins, fixedClock(now))
	eval, err := engine.CalculateTrustScore(context.Background(), "agent-1", domain.TierT2)
	if err != nil {
		t.Fatalf("CalculateTrustScore: %v", err)
	}
	if eval.TotalScore != 336 {
		t.Fatalf("total score = %d, want 336 (236 + evolved modifier)", eval.TotalScore)
	}
	if eval.ScoreModifier != 100 {
		t.Fatalf("score modifier = %d, want 100", eval.ScoreModifier)
	}
	if eval.Tier != domain.TierT2 {
		t.Fatalf("tier = %s, want T2", eval.Tier)
	}
	if _, ok := evals.saved["agent-1"]; !ok {
		t.Fatalf("evaluation not persisted")
	}
}

func TestCalculateTrustScoreBreakerForcesFloor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	factors := &factorRepoStub{latest: allFactorsAt(1, now)}
	breaker := &breakerRepoStub{tripped: map[string]string{"agent-1": "critical probe failed"}}

	engine := NewTrustEngine(factors, &evalRepoStub{}, breaker, nil, fixedClock(now))
	eval, err := engine.CalculateTrustScore(context.Background(), "agent-1", domain.TierT5)
	if err != nil {
		t.Fatalf("CalculateTrustScore: %v", err)
	}
	if !eval.CircuitBreaker {
		t.Fatalf("circuit breaker flag not set")
	}
	if eval.TotalScore != DefaultBreakerFloor {
		t.Fatalf("total score = %d, want floor %d", eval.TotalScore, DefaultBreakerFloor)
	}
	if eval.Tier != domain.TierT0 {
		t.Fatalf("tier = %s, want T0", eval.Tier)
	}
}

func TestTripBreakerStoresFloorEvaluation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evals := &evalRepoStub{}
	_ = evals.Save(context.Background(), domain.TrustEvaluation{
		AgentID:    "agent-1",
		TotalScore: 850,
		Tier:       domain.TierT4,
		TargetTier: domain.TierT5,
		ComputedAt: now.Add(-time.Hour),
	})
	breaker := &breakerRepoStub{}

	engine := NewTrustEngine(&factorRepoStub{}, evals, breaker, nil, fixedClock(now))
	if err := engine.TripBreaker(context.Background(), "agent-1", "failed critical probe fact-001"); err != nil {
		t.Fatalf("TripBreaker: %v", err)
	}

	if _, ok := breaker.tripped["agent-1"]; !ok {
		t.Fatalf("breaker not tripped")
	}
	saved := evals.saved["agent-1"]
	if saved.TotalScore != DefaultBreakerFloor || saved.Tier != domain.TierT0 {
		t.Fatalf("stored eval score=%d tier=%s, want floor/T0", saved.TotalScore, saved.Tier)
	}
	if !saved.CircuitBreaker {
		t.Fatalf("stored eval missing breaker flag")
	}
}

func TestRecordFactorScoreRejectsUnknownCode(t *testing.T) {
	engine := NewTrustEngine(&factorRepoStub{}, &evalRepoStub{}, &breakerRepoStub{}, nil, fixedClock(time.Now()))
	err := engine.RecordFactorScore(context.Background(), "agent-1", domain.FactorScore{
		Code:   "competence.vibes",
		Score:  0.5,
		Source: domain.FactorSourceMeasured,
	})
	if !errors.Is(err, domain.ErrFactorUnknown) {
		t.Fatalf("err = %v, want ErrFactorUnknown", err)
	}
}

func TestRecordFactorScoreRejectsOutOfRange(t *testing.T) {
	engine := NewTrustEngine(&factorRepoStub{}, &evalRepoStub{}, &breakerRepoStub{}, nil, fixedClock(time.Now()))
	err := engine.RecordFactorScore(context.Background(), "agent-1", domain.FactorScore{
		Code:   domain.FactorCompetenceAccuracy,
		Score:  1.2,
		Source: domain.FactorSourceMeasured,
	})
	if !errors.Is(err, domain.ErrInvalidFactorScore) {
		t.Fatalf("err = %v, want ErrInvalidFactorScore", err)
	}
}

func TestTierFromScoreBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  domain.TrustTier
	}{
		{0, domain.TierT0},
		{99, domain.TierT0},
		{100, domain.TierT1},
		{299, domain.TierT1},
		{300, domain.TierT2},
		{500, domain.TierT3},
		{700, domain.TierT4},
		{899, domain.TierT4},
		{900, domain.TierT5},
		{1000, domain.TierT5},
		{-5, domain.TierT0},
		{1500, domain.TierT5},
	}
	for _, tc := range cases {
		if got := domain.TierFromScore(tc.score); got != tc.want {
			t.Fatalf("TierFromScore(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
