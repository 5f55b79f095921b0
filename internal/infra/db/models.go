package db

import "time"

type FactorScoreModel struct {
	ID         int64     `gorm:"primaryKey"`
	AgentID    string    `gorm:"type:text;index;not null"`
	Code       string    `gorm:"index;not null"`
	Score      float64   `gorm:"not null"`
	Confidence float64   `gorm:"not null"`
	Source     string    `gorm:"not null"`
	RecordedAt time.Time `gorm:"index;not null"`
}

func (FactorScoreModel) TableName() string {
	return "factor_scores"
}

type TrustEvaluationModel struct {
	AgentID         string    `gorm:"type:text;primaryKey"`
	TotalScore      int       `gorm:"not null"`
	Tier            string    `gorm:"not null"`
	TargetTier      string    `gorm:"not null"`
	FactorsJSON     []byte    `gorm:"type:jsonb;not null"`
	BlockedJSON     []byte    `gorm:"type:jsonb"`
	CircuitBreaker  bool      `gorm:"not null"`
	ScoreModifier   int       `gorm:"not null"`
	ComputedAt      time.Time `gorm:"not null"`
}

func (TrustEvaluationModel) TableName() string {
	return "trust_evaluations"
}

type BreakerStateModel struct {
	AgentID   string    `gorm:"type:text;primaryKey"`
	Tripped   bool      `gorm:"not null"`
	Reason    string
	TrippedAt time.Time `gorm:"not null"`
}

func (BreakerStateModel) TableName() string {
	return "breaker_states"
}

type TierStateModel struct {
	AgentID   string    `gorm:"type:text;primaryKey"`
	Tier      string    `gorm:"not null"`
	ChangedAt time.Time `gorm:"not null"`
}

func (TierStateModel) TableName() string {
	return "tier_states"
}

type GatingRunModel struct {
	RunID         string    `gorm:"type:uuid;primaryKey"`
	DecisionsJSON []byte    `gorm:"type:jsonb;not null"`
	StartedAt     time.Time `gorm:"not null"`
	FinishedAt    time.Time `gorm:"index;not null"`
}

func (GatingRunModel) TableName() string {
	return "gating_runs"
}

type ProbeStateModel struct {
	AgentID     string `gorm:"type:text;primaryKey"`
	LastProbeAt *time.Time
	StatsJSON   []byte `gorm:"type:jsonb"`
}

func (ProbeStateModel) TableName() string {
	return "probe_states"
}

type ProbeResultModel struct {
	ID                      int64     `gorm:"primaryKey"`
	AgentID                 string    `gorm:"type:text;index;not null"`
	ProbeID                 string    `gorm:"index;not null"`
	Category                string    `gorm:"not null"`
	Passed                  bool      `gorm:"not null"`
	ActualResponse          string    `gorm:"type:text"`
	ResponseTimeMs          int64     `gorm:"not null"`
	FailureReason           *string
	TriggeredCircuitBreaker bool      `gorm:"not null"`
	DegradedValidation      bool      `gorm:"not null"`
	ExecutedAt              time.Time `gorm:"index;not null"`
}

func (ProbeResultModel) TableName() string {
	return "probe_results"
}

type OriginRecordModel struct {
	AgentID    string    `gorm:"type:text;primaryKey"`
	RecordJSON []byte    `gorm:"type:jsonb;not null"`
	RecordHash string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (OriginRecordModel) TableName() string {
	return "origin_records"
}

type LedgerRecordModel struct {
	ID         int64     `gorm:"primaryKey"`
	AgentID    string    `gorm:"type:text;index:idx_ledger_agent_seq,unique,priority:1;not null"`
	Ledger     string    `gorm:"index:idx_ledger_agent_seq,unique,priority:2;not null"`
	Seq        int64     `gorm:"index:idx_ledger_agent_seq,unique,priority:3;not null"`
	PrevHash   *string
	RecordHash string    `gorm:"not null"`
	RecordJSON []byte    `gorm:"type:jsonb;not null"`
	RecordedAt time.Time `gorm:"not null"`
}

func (LedgerRecordModel) TableName() string {
	return "ledger_records"
}

type AuditEventModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	AgentID       string `gorm:"type:text;index;not null"`
	Seq           int64  `gorm:"not null"`
	EventType     string `gorm:"column:event_type;not null"`
	PayloadJSON   []byte `gorm:"type:jsonb;not null"`
	PayloadHash   string `gorm:"not null"`
	ActorType     string `gorm:"not null"`
	ActorIDHash   *string
	TargetType    string `gorm:"not null"`
	TargetID      *string
	Result        string `gorm:"not null"`
	ErrorCode     *string
	PrevEventHash string    `gorm:"not null"`
	EventHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

func (AuditEventModel) TableName() string {
	return "audit_events"
}
