package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"aci/internal/domain"
)

// FactorScoreStore keeps every appended score and an index of the
// newest score per factor code.
type FactorScoreStore struct {
	mu      sync.Mutex
	history map[string][]domain.FactorScore
	latest  map[string]map[string]domain.FactorScore
}

func NewFactorScoreStore() *FactorScoreStore {
	return &FactorScoreStore{
		history: make(map[string][]domain.FactorScore),
		latest:  make(map[string]map[string]domain.FactorScore),
	}
}

func (s *FactorScoreStore) Append(_ context.Context, agentID string, score domain.FactorScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[agentID] = append(s.history[agentID], score)
	byCode := s.latest[agentID]
	if byCode == nil {
		byCode = make(map[string]domain.FactorScore)
		s.latest[agentID] = byCode
	}
	if existing, ok := byCode[score.Code]; !ok || !score.RecordedAt.Before(existing.RecordedAt) {
		byCode[score.Code] = score
	}
	return nil
}

func (s *FactorScoreStore) Latest(_ context.Context, agentID string) (map[string]domain.FactorScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.FactorScore, len(s.latest[agentID]))
	for code, score := range s.latest[agentID] {
		out[code] = score
	}
	return out, nil
}

func (s *FactorScoreStore) ListAgents(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.history))
	for agentID := range s.history {
		out = append(out, agentID)
	}
	sort.Strings(out)
	return out, nil
}

// History returns every appended score for one agent in append order.
func (s *FactorScoreStore) History(_ context.Context, agentID string) ([]domain.FactorScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.FactorScore, len(s.history[agentID]))
	copy(out, s.history[agentID])
	return out, nil
}

// EvaluationStore keeps the most recent trust evaluation per agent.
type EvaluationStore struct {
	mu    sync.Mutex
	evals map[string]domain.TrustEvaluation
}

func NewEvaluationStore() *EvaluationStore {
	return &EvaluationStore{evals: make(map[string]domain.TrustEvaluation)}
}

func (s *EvaluationStore) Save(_ context.Context, eval domain.TrustEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evals[eval.AgentID] = eval
	return nil
}

func (s *EvaluationStore) Get(_ context.Context, agentID string) (*domain.TrustEvaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eval, ok := s.evals[agentID]
	if !ok {
		return nil, nil
	}
	out := eval
	return &out, nil
}

func (s *EvaluationStore) ListAll(_ context.Context) ([]domain.TrustEvaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TrustEvaluation, 0, len(s.evals))
	for _, eval := range s.evals {
		out = append(out, eval)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

type breakerState struct {
	tripped   bool
	reason    string
	trippedAt time.Time
}

// BreakerStore keeps circuit-breaker state per agent.
type BreakerStore struct {
	mu     sync.Mutex
	states map[string]breakerState
}

func NewBreakerStore() *BreakerStore {
	return &BreakerStore{states: make(map[string]breakerState)}
}

func (s *BreakerStore) Trip(_ context.Context, agentID string, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[agentID] = breakerState{tripped: true, reason: reason, trippedAt: at}
	return nil
}

func (s *BreakerStore) Get(_ context.Context, agentID string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.states[agentID]
	return state.tripped, state.reason, nil
}

func (s *BreakerStore) Reset(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, agentID)
	return nil
}

type tierState struct {
	tier domain.TrustTier
	at   time.Time
}

// TierStateStore keeps the tier each agent currently holds.
type TierStateStore struct {
	mu     sync.Mutex
	states map[string]tierState
}

func NewTierStateStore() *TierStateStore {
	return &TierStateStore{states: make(map[string]tierState)}
}

func (s *TierStateStore) Current(_ context.Context, agentID string) (domain.TrustTier, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[agentID]
	if !ok {
		return "", false, nil
	}
	return state.tier, true, nil
}

func (s *TierStateStore) Set(_ context.Context, agentID string, tier domain.TrustTier, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[agentID] = tierState{tier: tier, at: at}
	return nil
}

// GatingRunStore keeps gating runs newest-last.
type GatingRunStore struct {
	mu   sync.Mutex
	runs []domain.GatingRun
}

func NewGatingRunStore() *GatingRunStore {
	return &GatingRunStore{}
}

func (s *GatingRunStore) SaveRun(_ context.Context, run domain.GatingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *GatingRunStore) LastRun(_ context.Context) (*domain.GatingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return nil, nil
	}
	out := s.runs[len(s.runs)-1]
	return &out, nil
}
