package memstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"aci/internal/domain"
	cryptoinfra "aci/internal/infra/crypto"
)

const zeroAuditHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditEventStore keeps per-agent hash-chained audit events. Append is
// the only writer; it assigns sequence, links the previous event hash,
// and derives the event hash over the canonical chain payload.
type AuditEventStore struct {
	mu     sync.Mutex
	events map[string][]domain.AuditEvent
}

func NewAuditEventStore() *AuditEventStore {
	return &AuditEventStore{events: make(map[string][]domain.AuditEvent)}
}

func (s *AuditEventStore) Append(_ context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if event.EventType == "" {
		return domain.AuditEvent{}, errors.New("event_type is required")
	}
	if event.AgentID == "" {
		event.AgentID = domain.AuditSystemAgentID
	}
	if event.ID == "" {
		id, err := newUUID()
		if err != nil {
			return domain.AuditEvent{}, err
		}
		event.ID = id
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	payloadJSON, payloadHash, err := computePayload(event.Payload)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.Payload = payloadJSON
	event.PayloadHash = payloadHash

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.events[event.AgentID]
	event.Seq = int64(len(list)) + 1
	event.PrevEventHash = zeroAuditHash
	if len(list) > 0 {
		event.PrevEventHash = list[len(list)-1].EventHash
	}
	eventHash, err := computeAuditEventHash(event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.EventHash = eventHash
	s.events[event.AgentID] = append(list, event)
	return event, nil
}

func (s *AuditEventStore) ListByAgent(_ context.Context, agentID string) ([]domain.AuditEvent, error) {
	if agentID == "" {
		agentID = domain.AuditSystemAgentID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEvent, len(s.events[agentID]))
	copy(out, s.events[agentID])
	return out, nil
}

func computePayload(payload any) ([]byte, string, error) {
	canonical, err := cryptoinfra.CanonicalizeAny(payload)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(canonical)
	return canonical, hex.EncodeToString(sum[:]), nil
}

func computeAuditEventHash(event domain.AuditEvent) (string, error) {
	if event.PayloadHash == "" || event.PrevEventHash == "" {
		return "", errors.New("payload_hash and prev_event_hash are required")
	}
	payload := map[string]any{
		"v":               domain.AuditChainVersion,
		"agent_id":        event.AgentID,
		"seq":             event.Seq,
		"event_type":      string(event.EventType),
		"payload_hash":    event.PayloadHash,
		"prev_event_hash": event.PrevEventHash,
		"created_at":      event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	canonical, err := cryptoinfra.CanonicalizeAny(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func newUUID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	bytes[6] = (bytes[6] & 0x0f) | 0x40
	bytes[8] = (bytes[8] & 0x3f) | 0x80
	hexStr := hex.EncodeToString(bytes)
	return hexStr[0:8] + "-" + hexStr[8:12] + "-" + hexStr[12:16] + "-" + hexStr[16:20] + "-" + hexStr[20:32], nil
}
