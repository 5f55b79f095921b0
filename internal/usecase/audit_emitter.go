package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"aci/internal/domain"
)

// AuditEmitter appends typed events to the audit chain. The repository
// assigns sequence and hash linkage; the emitter only shapes payloads.
type AuditEmitter struct {
	Repo  AuditEventRepository
	Clock Clock
}

func NewAuditEmitter(repo AuditEventRepository, clock Clock) *AuditEmitter {
	return &AuditEmitter{
		Repo:  repo,
		Clock: clock,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if e == nil || e.Repo == nil {
		return domain.AuditEvent{}, errors.New("audit repository required")
	}
	if event.EventType == "" || event.TargetType == "" || event.Result == "" || event.ActorType == "" {
		return domain.AuditEvent{}, errors.New("audit event missing required fields")
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	return e.Repo.Append(ctx, event)
}

func (e *AuditEmitter) EmitProbeExecuted(ctx context.Context, agentID string, result domain.CanaryProbeResult) error {
	payload := map[string]any{
		"agent_id":         agentID,
		"probe_id":         result.ProbeID,
		"category":         string(result.Category),
		"passed":           result.Passed,
		"response_time_ms": result.ResponseTimeMs,
	}
	if result.FailureReason != "" {
		payload["failure_reason"] = result.FailureReason
	}
	auditResult := domain.AuditResultSuccess
	if !result.Passed {
		auditResult = domain.AuditResultFailure
	}
	_, err := e.Emit(ctx, domain.AuditEvent{
		AgentID:    agentID,
		ActorType:  domain.AuditActorService,
		EventType:  domain.AuditEventProbeExecuted,
		Payload:    payload,
		TargetType: domain.AuditTargetProbe,
		TargetID:   result.ProbeID,
		Result:     auditResult,
	})
	return err
}

func (e *AuditEmitter) EmitCircuitBreakerTripped(ctx context.Context, agentID, probeID, reason string) error {
	payload := map[string]any{
		"agent_id": agentID,
		"reason":   reason,
	}
	if probeID != "" {
		payload["probe_id"] = probeID
	}
	_, err := e.Emit(ctx, domain.AuditEvent{
		AgentID:    agentID,
		ActorType:  domain.AuditActorService,
		EventType:  domain.AuditEventCircuitBreakerTripped,
		Payload:    payload,
		TargetType: domain.AuditTargetAgent,
		TargetID:   agentID,
		Result:     domain.AuditResultFailure,
	})
	return err
}

func (e *AuditEmitter) EmitTierChanged(ctx context.Context, actorType domain.AuditActorType, actorID string, decision domain.GatingDecision) error {
	eventType := domain.AuditEventTierPromoted
	if decision.Action == domain.GatingDemote {
		eventType = domain.AuditEventTierDemoted
	}
	payload := map[string]any{
		"agent_id":  decision.AgentID,
		"from_tier": string(decision.FromTier),
		"to_tier":   string(decision.ToTier),
		"score":     decision.Score,
	}
	if len(decision.Reasons) > 0 {
		payload["reasons"] = decision.Reasons
	}
	_, err := e.Emit(ctx, domain.AuditEvent{
		AgentID:     decision.AgentID,
		ActorType:   actorType,
		ActorIDHash: hashString(actorID),
		EventType:   eventType,
		Payload:     payload,
		TargetType:  domain.AuditTargetTier,
		TargetID:    string(decision.ToTier),
		Result:      domain.AuditResultSuccess,
	})
	return err
}

func (e *AuditEmitter) EmitOwnershipTransferred(ctx context.Context, actorType domain.AuditActorType, actorID string, rec domain.OwnershipRecord) error {
	payload := map[string]any{
		"agent_id":      rec.AgentID,
		"principal_id":  rec.PrincipalID,
		"role":          string(rec.Role),
		"transfer_type": string(rec.TransferType),
		"sequence":      rec.Sequence,
	}
	if rec.FromPrincipal != "" {
		payload["from_principal"] = rec.FromPrincipal
	}
	_, err := e.Emit(ctx, domain.AuditEvent{
		AgentID:     rec.AgentID,
		ActorType:   actorType,
		ActorIDHash: hashString(actorID),
		EventType:   domain.AuditEventOwnershipTransferred,
		Payload:     payload,
		TargetType:  domain.AuditTargetOwnership,
		TargetID:    rec.PrincipalID,
		Result:      domain.AuditResultSuccess,
	})
	return err
}

func (e *AuditEmitter) EmitInstructionChanged(ctx context.Context, actorType domain.AuditActorType, actorID, agentID string, version int, beforeHash, afterHash domain.Hash) error {
	payload := map[string]any{
		"agent_id":    agentID,
		"version":     version,
		"before_hash": string(beforeHash),
		"after_hash":  string(afterHash),
	}
	_, err := e.Emit(ctx, domain.AuditEvent{
		AgentID:     agentID,
		ActorType:   actorType,
		ActorIDHash: hashString(actorID),
		EventType:   domain.AuditEventInstructionChanged,
		Payload:     payload,
		TargetType:  domain.AuditTargetOrigin,
		TargetID:    agentID,
		Result:      domain.AuditResultSuccess,
	})
	return err
}

func (e *AuditEmitter) EmitOriginRegistered(ctx context.Context, actorType domain.AuditActorType, actorID string, rec domain.OriginRecord) error {
	payload := map[string]any{
		"agent_id":      rec.AgentID,
		"creation_type": string(rec.CreationType),
		"record_hash":   string(rec.RecordHash),
	}
	if rec.ParentAgentID != "" {
		payload["parent_agent_id"] = rec.ParentAgentID
	}
	_, err := e.Emit(ctx, domain.AuditEvent{
		AgentID:     rec.AgentID,
		ActorType:   actorType,
		ActorIDHash: hashString(actorID),
		EventType:   domain.AuditEventOriginRegistered,
		Payload:     payload,
		TargetType:  domain.AuditTargetOrigin,
		TargetID:    rec.AgentID,
		Result:      domain.AuditResultSuccess,
	})
	return err
}

func (e *AuditEmitter) now() time.Time {
	if e != nil && e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

func hashString(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
