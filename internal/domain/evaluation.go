package domain

import "time"

// TrustEvaluation is the output of one trust computation. It is a
// derived value: only the evaluation result and the factor scores that
// fed it are retained, never mutated in place.
type TrustEvaluation struct {
	AgentID           string             `json:"agent_id"`
	TotalScore        int                `json:"total_score"`
	Tier              TrustTier          `json:"tier"`
	TargetTier        TrustTier          `json:"target_tier"`
	PerFactorScores   map[string]float64 `json:"per_factor_scores"`
	BlockedDimensions []string           `json:"blocked_dimensions,omitempty"`
	CircuitBreaker    bool               `json:"circuit_breaker"`
	ScoreModifier     int                `json:"score_modifier,omitempty"`
	ComputedAt        time.Time          `json:"computed_at"`
}

// GatingAction is the outcome of one gating pass for one agent.
type GatingAction string

const (
	GatingPromote GatingAction = "promote"
	GatingDemote  GatingAction = "demote"
	GatingHold    GatingAction = "hold"
)

// GatingDecision is deterministic given the same telemetry snapshot.
// Reasons name the blocking factor or probe; there is no opaque denial.
type GatingDecision struct {
	AgentID   string       `json:"agent_id"`
	Action    GatingAction `json:"action"`
	FromTier  TrustTier    `json:"from_tier"`
	ToTier    TrustTier    `json:"to_tier"`
	Score     int          `json:"score"`
	Reasons   []string     `json:"reasons,omitempty"`
	DecidedAt time.Time    `json:"decided_at"`
}

// GatingRun is the result of one gating pass over the fleet.
type GatingRun struct {
	RunID      string           `json:"run_id"`
	Decisions  []GatingDecision `json:"decisions"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}
