package usecase

import (
	"context"
	"time"

	"aci/internal/domain"
)

type Clock func() time.Time

// FactorScoreRepository stores factor observations append-only. Latest
// returns the newest score per factor code for one agent.
type FactorScoreRepository interface {
	Append(ctx context.Context, agentID string, score domain.FactorScore) error
	Latest(ctx context.Context, agentID string) (map[string]domain.FactorScore, error)
	ListAgents(ctx context.Context) ([]string, error)
}

// EvaluationRepository keeps the most recent TrustEvaluation per agent.
type EvaluationRepository interface {
	Save(ctx context.Context, eval domain.TrustEvaluation) error
	Get(ctx context.Context, agentID string) (*domain.TrustEvaluation, error)
	ListAll(ctx context.Context) ([]domain.TrustEvaluation, error)
}

// BreakerRepository stores circuit-breaker state per agent. A tripped
// breaker forces the agent's score to the floor until reset.
type BreakerRepository interface {
	Trip(ctx context.Context, agentID string, reason string, at time.Time) error
	Get(ctx context.Context, agentID string) (tripped bool, reason string, err error)
	Reset(ctx context.Context, agentID string) error
}

// ProbeStateRepository stores per-agent canary state: last probe time
// and running stats.
type ProbeStateRepository interface {
	LastProbeTime(ctx context.Context, agentID string) (time.Time, bool, error)
	SetLastProbeTime(ctx context.Context, agentID string, t time.Time) error
	Stats(ctx context.Context, agentID string) (domain.CanaryProbeStats, error)
	SaveStats(ctx context.Context, stats domain.CanaryProbeStats) error
}

// ProbeResultRepository stores probe results append-only.
type ProbeResultRepository interface {
	Append(ctx context.Context, result domain.CanaryProbeResult) error
	ListByAgent(ctx context.Context, agentID string) ([]domain.CanaryProbeResult, error)
}

// OriginRepository stores one origin record per agent.
type OriginRepository interface {
	Put(ctx context.Context, rec domain.OriginRecord) error
	Get(ctx context.Context, agentID string) (*domain.OriginRecord, error)
}

// OwnershipRepository appends to and reads an agent's ownership ledger.
// Append assigns sequence and prev hash atomically; out-of-order commits
// are rejected with domain.ErrSequenceConflict rather than reordered.
type OwnershipRepository interface {
	Append(ctx context.Context, rec domain.OwnershipRecord) (domain.OwnershipRecord, error)
	ListByAgent(ctx context.Context, agentID string) ([]domain.OwnershipRecord, error)
}

// ActionRepository appends to and reads an agent's action ledger.
type ActionRepository interface {
	Append(ctx context.Context, rec domain.ActionRecord) (domain.ActionRecord, error)
	ListByAgent(ctx context.Context, agentID string) ([]domain.ActionRecord, error)
}

// TransformationRepository appends to and reads an agent's
// transformation ledger.
type TransformationRepository interface {
	Append(ctx context.Context, rec domain.TransformationRecord) (domain.TransformationRecord, error)
	ListByAgent(ctx context.Context, agentID string) ([]domain.TransformationRecord, error)
}

// TierStateRepository stores the tier an agent currently holds. Gating
// is the only writer; tier changes never happen as a side effect of
// scoring alone.
type TierStateRepository interface {
	Current(ctx context.Context, agentID string) (domain.TrustTier, bool, error)
	Set(ctx context.Context, agentID string, tier domain.TrustTier, at time.Time) error
}

// GatingRunRepository keeps gating pass results for later inspection.
type GatingRunRepository interface {
	SaveRun(ctx context.Context, run domain.GatingRun) error
	LastRun(ctx context.Context) (*domain.GatingRun, error)
}

// AuditEventRepository appends to and reads the audit event chain.
type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByAgent(ctx context.Context, agentID string) ([]domain.AuditEvent, error)
}

// EvaluationCache is an optional TTL cache in front of trust
// evaluations.
type EvaluationCache interface {
	Get(ctx context.Context, key string) (*domain.TrustEvaluation, bool, error)
	Put(ctx context.Context, key string, value domain.TrustEvaluation, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GatingPolicyEngine is an optional policy hook consulted during gating.
// Deny codes become hold reasons; they never grant what the threshold
// tables deny.
type GatingPolicyEngine interface {
	Evaluate(ctx context.Context, input GatingPolicyInput) (GatingPolicyResult, error)
}

type GatingPolicyInput struct {
	AgentID     string             `json:"agent_id"`
	CurrentTier domain.TrustTier   `json:"current_tier"`
	TargetTier  domain.TrustTier   `json:"target_tier"`
	Score       int                `json:"score"`
	Factors     map[string]float64 `json:"factors"`
}

type GatingPolicyResult struct {
	Allow bool     `json:"allow"`
	Deny  []string `json:"deny,omitempty"`
}
