package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"aci/internal/domain"
)

const (
	// TrustEngineVersion tags evaluations for downstream consumers.
	TrustEngineVersion = "trust.v1"

	// DefaultBreakerFloor is the forced score while a circuit breaker
	// is open: low enough that every gating pass lands in the bottom
	// tier, bypassing any trend smoothing.
	DefaultBreakerFloor = 5

	coreGroupWeight         = 0.6
	lifeCriticalGroupWeight = 0.4
)

// TrustEngine computes bounded trust scores and tiers from recorded
// factor scores. The computation itself is pure; the engine wires it to
// storage, the breaker state, and the origin score modifier.
type TrustEngine struct {
	Factors      FactorScoreRepository
	Evals        EvaluationRepository
	Breaker      BreakerRepository
	Origins      OriginRepository
	Cache        EvaluationCache
	CacheTTL     time.Duration
	Clock        Clock
	BreakerFloor int
}

func NewTrustEngine(factors FactorScoreRepository, evals EvaluationRepository, breaker BreakerRepository, origins OriginRepository, clock Clock) *TrustEngine {
	return &TrustEngine{
		Factors:      factors,
		Evals:        evals,
		Breaker:      breaker,
		Origins:      origins,
		Clock:        clock,
		BreakerFloor: DefaultBreakerFloor,
	}
}

// RecordFactorScore validates and appends one observation, then
// invalidates the cached evaluation.
func (e *TrustEngine) RecordFactorScore(ctx context.Context, agentID string, score domain.FactorScore) error {
	if agentID == "" {
		return domain.ErrAgentUnknown
	}
	if err := score.Valid(); err != nil {
		return err
	}
	if score.RecordedAt.IsZero() {
		score.RecordedAt = e.now()
	}
	if err := e.Factors.Append(ctx, agentID, score); err != nil {
		return err
	}
	if e.Cache != nil {
		_ = e.Cache.Delete(ctx, agentID)
	}
	return nil
}

// CalculateTrustScore evaluates an agent against a target tier. Every
// factor the target tier requires is consulted; missing factors score
// zero (fail closed). The result is persisted as the agent's current
// evaluation.
func (e *TrustEngine) CalculateTrustScore(ctx context.Context, agentID string, target domain.TrustTier) (domain.TrustEvaluation, error) {
	if agentID == "" {
		return domain.TrustEvaluation{}, domain.ErrAgentUnknown
	}
	if target.Index() < 0 {
		return domain.TrustEvaluation{}, errors.New("unknown target tier")
	}
	latest, err := e.Factors.Latest(ctx, agentID)
	if err != nil {
		return domain.TrustEvaluation{}, err
	}

	modifier := 0
	if e.Origins != nil {
		if origin, err := e.Origins.Get(ctx, agentID); err == nil && origin != nil {
			modifier = origin.CreationType.ScoreModifier()
		}
	}

	eval := ComputeEvaluation(agentID, latest, target, modifier, e.now())

	if e.Breaker != nil {
		tripped, _, err := e.Breaker.Get(ctx, agentID)
		if err != nil {
			return domain.TrustEvaluation{}, err
		}
		if tripped {
			eval.CircuitBreaker = true
			eval.TotalScore = e.floor()
			eval.Tier = domain.TierFromScore(eval.TotalScore)
		}
	}

	if e.Evals != nil {
		if err := e.Evals.Save(ctx, eval); err != nil {
			return domain.TrustEvaluation{}, err
		}
	}
	if e.Cache != nil && e.CacheTTL > 0 {
		_ = e.Cache.Put(ctx, agentID, eval, e.CacheTTL)
	}
	return eval, nil
}

// CurrentEvaluation returns the cached or stored evaluation, computing
// a fresh one when neither exists.
func (e *TrustEngine) CurrentEvaluation(ctx context.Context, agentID string) (domain.TrustEvaluation, error) {
	if e.Cache != nil {
		if cached, ok, err := e.Cache.Get(ctx, agentID); err == nil && ok && cached.AgentID != "" {
			return *cached, nil
		}
	}
	if e.Evals != nil {
		if stored, err := e.Evals.Get(ctx, agentID); err == nil && stored != nil {
			return *stored, nil
		}
	}
	return e.CalculateTrustScore(ctx, agentID, domain.TierT5)
}

// TripBreaker forces the agent's trust to the floor. The forced
// evaluation is stored immediately so the next gating pass demotes
// without waiting for a recompute.
func (e *TrustEngine) TripBreaker(ctx context.Context, agentID, reason string) error {
	if e.Breaker == nil {
		return errors.New("breaker repository required")
	}
	now := e.now()
	if err := e.Breaker.Trip(ctx, agentID, reason, now); err != nil {
		return err
	}
	if e.Evals != nil {
		prior, _ := e.Evals.Get(ctx, agentID)
		eval := domain.TrustEvaluation{
			AgentID:        agentID,
			TotalScore:     e.floor(),
			Tier:           domain.TierFromScore(e.floor()),
			TargetTier:     domain.TierT0,
			CircuitBreaker: true,
			ComputedAt:     now,
		}
		if prior != nil {
			eval.PerFactorScores = prior.PerFactorScores
			eval.TargetTier = prior.TargetTier
		}
		if err := e.Evals.Save(ctx, eval); err != nil {
			return err
		}
	}
	if e.Cache != nil {
		_ = e.Cache.Delete(ctx, agentID)
	}
	return nil
}

// ResetBreaker closes the breaker after out-of-band review.
func (e *TrustEngine) ResetBreaker(ctx context.Context, agentID string) error {
	if e.Breaker == nil {
		return errors.New("breaker repository required")
	}
	return e.Breaker.Reset(ctx, agentID)
}

func (e *TrustEngine) floor() int {
	if e.BreakerFloor > 0 {
		return e.BreakerFloor
	}
	return DefaultBreakerFloor
}

func (e *TrustEngine) now() time.Time {
	if e.Clock != nil {
		return e.Clock().UTC()
	}
	return time.Now().UTC()
}

// ComputeEvaluation is the pure scoring function: weighted sum per
// factor group scaled to 0-1000, plus the independent threshold gate
// that lists blocked dimensions for the target tier. Deterministic for
// a given score set and threshold table.
func ComputeEvaluation(agentID string, latest map[string]domain.FactorScore, target domain.TrustTier, modifier int, now time.Time) domain.TrustEvaluation {
	perFactor := make(map[string]float64, len(latest))
	for _, code := range domain.FactorCodes() {
		if score, ok := latest[code]; ok {
			perFactor[code] = score.Score
		}
	}

	var coreSum, lifeSum float64
	for _, code := range domain.FactorCodes() {
		factor, _ := domain.FactorByCode(code)
		value := perFactor[code] // missing factors contribute zero
		switch factor.Group {
		case domain.FactorGroupCore:
			coreSum += factor.Weight * value
		case domain.FactorGroupLifeCritical:
			lifeSum += factor.Weight * value
		}
	}

	raw := (coreGroupWeight*coreSum + lifeCriticalGroupWeight*lifeSum) * 1000
	total := int(math.Round(raw)) + modifier
	if total < 0 {
		total = 0
	}
	if total > 1000 {
		total = 1000
	}

	return domain.TrustEvaluation{
		AgentID:           agentID,
		TotalScore:        total,
		Tier:              domain.TierFromScore(total),
		TargetTier:        target,
		PerFactorScores:   perFactor,
		BlockedDimensions: domain.BlockedFactors(perFactor, target),
		ScoreModifier:     modifier,
		ComputedAt:        now,
	}
}
