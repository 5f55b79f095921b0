package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"time"

	"aci/internal/domain"
)

const GatingEngineVersion = "gating.v1"

// Gating reason codes. Factor-specific reasons are suffixed with the
// factor code so a denial always names what blocked it.
const (
	ReasonCircuitBreakerOpen  = "CIRCUIT_BREAKER_OPEN"
	ReasonScoreBelowTier      = "SCORE_BELOW_TIER"
	ReasonScoreBelowNextTier  = "SCORE_BELOW_NEXT_TIER"
	ReasonAtMaxTier           = "AT_MAX_TIER"
	ReasonBlockedDimension    = "BLOCKED_DIMENSION"
	ReasonPolicyDeny          = "POLICY_DENY"
	ReasonPolicyUnavailable   = "POLICY_UNAVAILABLE"
	reasonBlockedDimensionFmt = ReasonBlockedDimension + ":%s"
)

// GatingEngine turns trust evaluations into tier movements. Decisions
// are deterministic for a given telemetry snapshot: same scores, same
// breaker state, same policy result, same decision. Promotion moves one
// tier per pass; demotion goes as far down as the evidence demands.
type GatingEngine struct {
	Trust  *TrustEngine
	Tiers  TierStateRepository
	Runs   GatingRunRepository
	Policy GatingPolicyEngine
	Audit  *AuditEmitter
	Clock  Clock
}

func NewGatingEngine(trust *TrustEngine, tiers TierStateRepository, runs GatingRunRepository, clock Clock) *GatingEngine {
	return &GatingEngine{
		Trust: trust,
		Tiers: tiers,
		Runs:  runs,
		Clock: clock,
	}
}

// EvaluateAgent runs one gating decision for one agent and applies it.
func (g *GatingEngine) EvaluateAgent(ctx context.Context, agentID string) (domain.GatingDecision, error) {
	if g.Trust == nil || g.Tiers == nil {
		return domain.GatingDecision{}, errors.New("gating engine not wired")
	}
	if agentID == "" {
		return domain.GatingDecision{}, domain.ErrAgentUnknown
	}

	current, ok, err := g.Tiers.Current(ctx, agentID)
	if err != nil {
		return domain.GatingDecision{}, err
	}
	if !ok {
		current = domain.TierT0
	}

	target := current
	if next, hasNext := current.Next(); hasNext {
		target = next
	}
	eval, err := g.Trust.CalculateTrustScore(ctx, agentID, target)
	if err != nil {
		return domain.GatingDecision{}, err
	}

	decision := g.decide(ctx, current, eval)
	if err := g.apply(ctx, decision); err != nil {
		return domain.GatingDecision{}, err
	}
	return decision, nil
}

// RunAll executes a gating pass over every agent with recorded factor
// scores and stores the run.
func (g *GatingEngine) RunAll(ctx context.Context) (domain.GatingRun, error) {
	if g.Trust == nil || g.Trust.Factors == nil {
		return domain.GatingRun{}, errors.New("gating engine not wired")
	}
	agents, err := g.Trust.Factors.ListAgents(ctx)
	if err != nil {
		return domain.GatingRun{}, err
	}
	sort.Strings(agents)

	run := domain.GatingRun{
		RunID:     newRunID(),
		StartedAt: g.now(),
	}
	for _, agentID := range agents {
		decision, err := g.EvaluateAgent(ctx, agentID)
		if err != nil {
			return domain.GatingRun{}, fmt.Errorf("gating %s: %w", agentID, err)
		}
		run.Decisions = append(run.Decisions, decision)
	}
	run.FinishedAt = g.now()

	if g.Runs != nil {
		if err := g.Runs.SaveRun(ctx, run); err != nil {
			return domain.GatingRun{}, err
		}
	}
	return run, nil
}

// LastRun returns the most recent stored gating pass.
func (g *GatingEngine) LastRun(ctx context.Context) (*domain.GatingRun, error) {
	if g.Runs == nil {
		return nil, nil
	}
	return g.Runs.LastRun(ctx)
}

// decide is the pure decision core. Demotion checks run first and are
// never overridden by a passing promotion check.
func (g *GatingEngine) decide(ctx context.Context, current domain.TrustTier, eval domain.TrustEvaluation) domain.GatingDecision {
	reasons := make(map[string]struct{})
	decision := domain.GatingDecision{
		AgentID:   eval.AgentID,
		Action:    domain.GatingHold,
		FromTier:  current,
		ToTier:    current,
		Score:     eval.TotalScore,
		DecidedAt: g.now(),
	}

	scoreTier := domain.TierFromScore(eval.TotalScore)

	if eval.CircuitBreaker {
		addGatingReason(reasons, ReasonCircuitBreakerOpen)
		decision.Action = domain.GatingDemote
		decision.ToTier = scoreTier
		decision.Reasons = sortedGatingReasons(reasons)
		return decision
	}

	blockedCurrent := domain.BlockedFactors(eval.PerFactorScores, current)
	demoteTo := current
	if len(blockedCurrent) > 0 {
		for _, code := range blockedCurrent {
			addGatingReason(reasons, fmt.Sprintf(reasonBlockedDimensionFmt, code))
		}
		if prev, hasPrev := current.Prev(); hasPrev {
			demoteTo = prev
		}
	}
	if scoreTier.Index() < demoteTo.Index() {
		addGatingReason(reasons, ReasonScoreBelowTier)
		demoteTo = scoreTier
	}
	if demoteTo != current {
		decision.Action = domain.GatingDemote
		decision.ToTier = demoteTo
		decision.Reasons = sortedGatingReasons(reasons)
		return decision
	}

	next, hasNext := current.Next()
	if !hasNext {
		addGatingReason(reasons, ReasonAtMaxTier)
		decision.Reasons = sortedGatingReasons(reasons)
		return decision
	}
	if eval.TotalScore < next.Band().Min {
		addGatingReason(reasons, ReasonScoreBelowNextTier)
		decision.Reasons = sortedGatingReasons(reasons)
		return decision
	}
	if blockedNext := domain.BlockedFactors(eval.PerFactorScores, next); len(blockedNext) > 0 {
		for _, code := range blockedNext {
			addGatingReason(reasons, fmt.Sprintf(reasonBlockedDimensionFmt, code))
		}
		decision.Reasons = sortedGatingReasons(reasons)
		return decision
	}

	if g.Policy != nil {
		result, err := g.Policy.Evaluate(ctx, GatingPolicyInput{
			AgentID:     eval.AgentID,
			CurrentTier: current,
			TargetTier:  next,
			Score:       eval.TotalScore,
			Factors:     eval.PerFactorScores,
		})
		if err != nil {
			addGatingReason(reasons, ReasonPolicyUnavailable)
			decision.Reasons = sortedGatingReasons(reasons)
			return decision
		}
		if !result.Allow {
			addGatingReason(reasons, result.Deny...)
			if len(result.Deny) == 0 {
				addGatingReason(reasons, ReasonPolicyDeny)
			}
			decision.Reasons = sortedGatingReasons(reasons)
			return decision
		}
	}

	decision.Action = domain.GatingPromote
	decision.ToTier = next
	decision.Reasons = sortedGatingReasons(reasons)
	return decision
}

func (g *GatingEngine) apply(ctx context.Context, decision domain.GatingDecision) error {
	if decision.Action == domain.GatingHold {
		return nil
	}
	if err := g.Tiers.Set(ctx, decision.AgentID, decision.ToTier, decision.DecidedAt); err != nil {
		return err
	}
	if g.Audit != nil {
		if err := g.Audit.EmitTierChanged(ctx, domain.AuditActorService, GatingEngineVersion, decision); err != nil {
			return err
		}
	}
	return nil
}

func (g *GatingEngine) now() time.Time {
	if g.Clock != nil {
		return g.Clock().UTC()
	}
	return time.Now().UTC()
}

func addGatingReason(reasonSet map[string]struct{}, reasons ...string) {
	for _, reason := range reasons {
		if reason == "" {
			continue
		}
		reasonSet[reason] = struct{}{}
	}
}

func sortedGatingReasons(reasons map[string]struct{}) []string {
	if len(reasons) == 0 {
		return nil
	}
	ordered := make([]string, 0, len(reasons))
	for reason := range reasons {
		ordered = append(ordered, reason)
	}
	sort.Strings(ordered)
	return ordered
}

func newRunID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", buf[0:4], buf[4:6], buf[6:8], buf[8:10], buf[10:16])
}
