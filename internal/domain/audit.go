package domain

import "time"

type AuditActorType string

const (
	// AuditSystemAgentID is the reserved agent identifier for
	// global/system audit events.
	AuditSystemAgentID = "__system__"
	AuditChainVersion  = "audit_chain_v1"

	AuditActorSystem      AuditActorType = "system"
	AuditActorAdminAPIKey AuditActorType = "admin_api_key"
	AuditActorService     AuditActorType = "service"
	AuditActorOperator    AuditActorType = "operator"
)

type AuditEventType string

const (
	AuditEventProbeExecuted         AuditEventType = "probe_executed"
	AuditEventCircuitBreakerTripped AuditEventType = "circuit_breaker_tripped"
	AuditEventTierPromoted          AuditEventType = "tier_promoted"
	AuditEventTierDemoted           AuditEventType = "tier_demoted"
	AuditEventOwnershipTransferred  AuditEventType = "ownership_transferred"
	AuditEventInstructionChanged    AuditEventType = "instruction_changed"
	AuditEventOriginRegistered      AuditEventType = "origin_registered"
)

type AuditTargetType string

const (
	AuditTargetAgent     AuditTargetType = "agent"
	AuditTargetProbe     AuditTargetType = "probe"
	AuditTargetTier      AuditTargetType = "tier"
	AuditTargetOwnership AuditTargetType = "ownership"
	AuditTargetOrigin    AuditTargetType = "origin"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

type AuditEvent struct {
	ID            string
	AgentID       string
	Seq           int64
	EventType     AuditEventType
	Payload       any
	PayloadHash   string
	ActorType     AuditActorType
	ActorIDHash   string
	TargetType    AuditTargetType
	TargetID      string
	Result        AuditResult
	ErrorCode     string
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}
