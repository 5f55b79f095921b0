package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"aci/internal/domain"
	"aci/internal/usecase"
)

// auditEventExport mirrors the audit endpoint's event shape. Payload is
// kept as raw canonical JSON so hashes re-derive byte for byte.
type auditEventExport struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agent_id"`
	Seq           int64           `json:"seq"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	PayloadHash   string          `json:"payload_hash"`
	ActorType     string          `json:"actor_type,omitempty"`
	TargetType    string          `json:"target_type,omitempty"`
	TargetID      string          `json:"target_id,omitempty"`
	Result        string          `json:"result,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	PrevEventHash string          `json:"prev_event_hash"`
	EventHash     string          `json:"event_hash"`
	CreatedAt     string          `json:"created_at"`
}

// sliceAuditRepo adapts an exported event list to the repository
// interface the chain verifier walks.
type sliceAuditRepo struct {
	byAgent map[string][]domain.AuditEvent
}

func (r *sliceAuditRepo) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	return domain.AuditEvent{}, fmt.Errorf("append not supported offline")
}

func (r *sliceAuditRepo) ListByAgent(ctx context.Context, agentID string) ([]domain.AuditEvent, error) {
	return r.byAgent[agentID], nil
}

func runAuditVerify(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "audit verify requires <events.json>")
		return 1
	}
	payload, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "read events: %v\n", err)
		return 1
	}
	var exported []auditEventExport
	if err := json.Unmarshal(payload, &exported); err != nil {
		// The audit endpoint wraps events in an envelope.
		var envelope struct {
			Events []auditEventExport `json:"events"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			fmt.Fprintf(os.Stderr, "decode events: %v\n", err)
			return 1
		}
		exported = envelope.Events
	}
	if len(exported) == 0 {
		fmt.Println("no events to verify")
		return 0
	}

	repo := &sliceAuditRepo{byAgent: make(map[string][]domain.AuditEvent)}
	for _, e := range exported {
		event, err := e.toDomain()
		if err != nil {
			fmt.Fprintf(os.Stderr, "event seq %d: %v\n", e.Seq, err)
			return 1
		}
		repo.byAgent[event.AgentID] = append(repo.byAgent[event.AgentID], event)
	}
	agents := make([]string, 0, len(repo.byAgent))
	for agentID, events := range repo.byAgent {
		sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
		agents = append(agents, agentID)
	}
	sort.Strings(agents)

	failed := false
	for _, agentID := range agents {
		if err := usecase.VerifyAgentAuditChain(context.Background(), repo, agentID); err != nil {
			fmt.Printf("agent %s: %v\n", agentID, err)
			failed = true
			continue
		}
		fmt.Printf("agent %s: chain valid (%d events)\n", agentID, len(repo.byAgent[agentID]))
	}
	if failed {
		return 1
	}
	return 0
}

func parseEventTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func (e auditEventExport) toDomain() (domain.AuditEvent, error) {
	createdAt, err := parseEventTime(e.CreatedAt)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("invalid created_at %q: %w", e.CreatedAt, err)
	}
	return domain.AuditEvent{
		ID:            e.ID,
		AgentID:       e.AgentID,
		Seq:           e.Seq,
		EventType:     domain.AuditEventType(e.EventType),
		Payload:       []byte(e.Payload),
		PayloadHash:   e.PayloadHash,
		ActorType:     domain.AuditActorType(e.ActorType),
		TargetType:    domain.AuditTargetType(e.TargetType),
		TargetID:      e.TargetID,
		Result:        domain.AuditResult(e.Result),
		ErrorCode:     e.ErrorCode,
		PrevEventHash: e.PrevEventHash,
		EventHash:     e.EventHash,
		CreatedAt:     createdAt,
	}, nil
}
