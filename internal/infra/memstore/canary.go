package memstore

import (
	"context"
	"sync"
	"time"

	"aci/internal/domain"
)

// ProbeStateStore keeps per-agent canary state: last probe time and
// running stats.
type ProbeStateStore struct {
	mu        sync.Mutex
	lastProbe map[string]time.Time
	stats     map[string]domain.CanaryProbeStats
}

func NewProbeStateStore() *ProbeStateStore {
	return &ProbeStateStore{
		lastProbe: make(map[string]time.Time),
		stats:     make(map[string]domain.CanaryProbeStats),
	}
}

func (s *ProbeStateStore) LastProbeTime(_ context.Context, agentID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastProbe[agentID]
	return t, ok, nil
}

func (s *ProbeStateStore) SetLastProbeTime(_ context.Context, agentID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastProbe[agentID] = t
	return nil
}

func (s *ProbeStateStore) Stats(_ context.Context, agentID string) (domain.CanaryProbeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[agentID]
	if !ok {
		return domain.CanaryProbeStats{AgentID: agentID}, nil
	}
	out := stats
	out.ByCategory = make(map[domain.ProbeCategory]domain.CategoryStats, len(stats.ByCategory))
	for cat, cs := range stats.ByCategory {
		out.ByCategory[cat] = cs
	}
	return out, nil
}

func (s *ProbeStateStore) SaveStats(_ context.Context, stats domain.CanaryProbeStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := stats
	stored.ByCategory = make(map[domain.ProbeCategory]domain.CategoryStats, len(stats.ByCategory))
	for cat, cs := range stats.ByCategory {
		stored.ByCategory[cat] = cs
	}
	s.stats[stats.AgentID] = stored
	return nil
}

// ProbeResultStore keeps probe results append-only, oldest first.
type ProbeResultStore struct {
	mu      sync.Mutex
	results map[string][]domain.CanaryProbeResult
}

func NewProbeResultStore() *ProbeResultStore {
	return &ProbeResultStore{results: make(map[string][]domain.CanaryProbeResult)}
}

func (s *ProbeResultStore) Append(_ context.Context, result domain.CanaryProbeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.AgentID] = append(s.results[result.AgentID], result)
	return nil
}

func (s *ProbeResultStore) ListByAgent(_ context.Context, agentID string) ([]domain.CanaryProbeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CanaryProbeResult, len(s.results[agentID]))
	copy(out, s.results[agentID])
	return out, nil
}
