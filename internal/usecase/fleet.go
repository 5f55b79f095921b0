package usecase

import (
	"context"
	"sort"
	"time"

	"aci/internal/domain"
)

// FleetAgent is one row of the fleet view.
type FleetAgent struct {
	AgentID             string           `json:"agent_id"`
	Score               int              `json:"score"`
	Tier                domain.TrustTier `json:"tier"`
	CircuitBreaker      bool             `json:"circuit_breaker"`
	BlockedDimensions   []string         `json:"blocked_dimensions,omitempty"`
	ProbePassRate       float64          `json:"probe_pass_rate"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
}

// FleetView is an aggregate snapshot across evaluated agents.
type FleetView struct {
	Agents              []FleetAgent             `json:"agents"`
	TierDistribution    map[domain.TrustTier]int `json:"tier_distribution"`
	AverageScore        float64                  `json:"average_score"`
	TopPerformers       []string                 `json:"top_performers,omitempty"`
	AtRisk              []string                 `json:"at_risk,omitempty"`
	PromotionCandidates []string                 `json:"promotion_candidates,omitempty"`
	GeneratedAt         time.Time                `json:"generated_at"`
}

const fleetTopPerformerCount = 5

// FleetService builds the operator-facing fleet summary from stored
// evaluations, tier state, breaker state, and probe stats.
type FleetService struct {
	Evals   EvaluationRepository
	Tiers   TierStateRepository
	Breaker BreakerRepository
	Probes  ProbeStateRepository
	Clock   Clock
}

func NewFleetService(evals EvaluationRepository, tiers TierStateRepository, breaker BreakerRepository, probes ProbeStateRepository, clock Clock) *FleetService {
	return &FleetService{
		Evals:   evals,
		Tiers:   tiers,
		Breaker: breaker,
		Probes:  probes,
		Clock:   clock,
	}
}

// Snapshot assembles the fleet view. Agents are ordered by score,
// highest first, with agent id as tiebreak so output is stable.
func (s *FleetService) Snapshot(ctx context.Context) (FleetView, error) {
	evals, err := s.Evals.ListAll(ctx)
	if err != nil {
		return FleetView{}, err
	}

	view := FleetView{
		TierDistribution: make(map[domain.TrustTier]int),
		GeneratedAt:      s.now(),
	}
	var scoreSum int
	for _, eval := range evals {
		agent := FleetAgent{
			AgentID:           eval.AgentID,
			Score:             eval.TotalScore,
			Tier:              eval.Tier,
			CircuitBreaker:    eval.CircuitBreaker,
			BlockedDimensions: eval.BlockedDimensions,
		}
		if s.Tiers != nil {
			if held, ok, err := s.Tiers.Current(ctx, eval.AgentID); err == nil && ok {
				agent.Tier = held
			}
		}
		if s.Breaker != nil && !agent.CircuitBreaker {
			if tripped, _, err := s.Breaker.Get(ctx, eval.AgentID); err == nil && tripped {
				agent.CircuitBreaker = true
			}
		}
		if s.Probes != nil {
			if stats, err := s.Probes.Stats(ctx, eval.AgentID); err == nil && stats.TotalProbes > 0 {
				agent.ProbePassRate = stats.PassRate
				agent.ConsecutiveFailures = stats.ConsecutiveFailures
			}
		}

		view.Agents = append(view.Agents, agent)
		view.TierDistribution[agent.Tier]++
		scoreSum += agent.Score

		if agent.CircuitBreaker || agent.ConsecutiveFailures >= DefaultConsecutiveFailureLimit || len(agent.BlockedDimensions) > 0 {
			view.AtRisk = append(view.AtRisk, agent.AgentID)
		} else if next, ok := agent.Tier.Next(); ok && agent.Score >= next.Band().Min {
			if blocked := domain.BlockedFactors(eval.PerFactorScores, next); len(blocked) == 0 {
				view.PromotionCandidates = append(view.PromotionCandidates, agent.AgentID)
			}
		}
	}

	sort.Slice(view.Agents, func(i, j int) bool {
		if view.Agents[i].Score != view.Agents[j].Score {
			return view.Agents[i].Score > view.Agents[j].Score
		}
		return view.Agents[i].AgentID < view.Agents[j].AgentID
	})
	sort.Strings(view.AtRisk)
	sort.Strings(view.PromotionCandidates)

	if len(view.Agents) > 0 {
		view.AverageScore = float64(scoreSum) / float64(len(view.Agents))
	}
	for i := 0; i < len(view.Agents) && i < fleetTopPerformerCount; i++ {
		view.TopPerformers = append(view.TopPerformers, view.Agents[i].AgentID)
	}
	return view, nil
}

func (s *FleetService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}
