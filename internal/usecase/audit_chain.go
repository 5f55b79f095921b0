package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"aci/internal/domain"
)

// VerifyAgentAuditChain walks one agent's audit events in sequence order
// and re-derives every hash. Any divergence is returned as an error
// naming the first bad sequence number.
func VerifyAgentAuditChain(ctx context.Context, repo AuditEventRepository, agentID string) error {
	if repo == nil {
		return errors.New("audit repository required")
	}
	if agentID == "" {
		agentID = domain.AuditSystemAgentID
	}
	events, err := repo.ListByAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	expectedSeq := int64(1)
	prevHash := zeroAuditHash()
	for _, event := range events {
		if event.AgentID != agentID {
			return fmt.Errorf("audit chain agent mismatch at seq %d", event.Seq)
		}
		if event.Seq != expectedSeq {
			return fmt.Errorf("audit chain seq mismatch: expected %d got %d", expectedSeq, event.Seq)
		}
		if event.PrevEventHash != prevHash {
			return fmt.Errorf("audit chain prev hash mismatch at seq %d", event.Seq)
		}
		payloadJSON, err := payloadBytes(event.Payload)
		if err != nil {
			return fmt.Errorf("audit chain payload decode failed at seq %d: %w", event.Seq, err)
		}
		payloadHash := sha256Hex(payloadJSON)
		if payloadHash != event.PayloadHash {
			return fmt.Errorf("audit chain payload hash mismatch at seq %d", event.Seq)
		}
		if event.CreatedAt.IsZero() {
			return fmt.Errorf("audit chain missing created_at at seq %d", event.Seq)
		}
		expectedHash, err := computeAuditChainHash(event)
		if err != nil {
			return fmt.Errorf("audit chain hash compute failed at seq %d: %w", event.Seq, err)
		}
		if expectedHash != event.EventHash {
			return fmt.Errorf("audit chain hash mismatch at seq %d", event.Seq)
		}
		prevHash = event.EventHash
		expectedSeq++
	}
	return nil
}

func payloadBytes(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("payload_json must be []byte")
	}
}

func computeAuditChainHash(event domain.AuditEvent) (string, error) {
	if event.AgentID == "" || event.EventType == "" {
		return "", errors.New("audit event missing agent_id or event_type")
	}
	if event.PayloadHash == "" || event.PrevEventHash == "" {
		return "", errors.New("audit event missing payload_hash or prev_event_hash")
	}
	payload := auditChainPayload{
		Version:       domain.AuditChainVersion,
		AgentID:       event.AgentID,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		PayloadHash:   event.PayloadHash,
		PrevEventHash: event.PrevEventHash,
		CreatedAt:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	canonical := payload.CanonicalJSON()
	return sha256Hex(canonical), nil
}

func sha256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// zeroAuditHash is the audit chain head sentinel. The provenance ledgers
// use an absent prev hash for genesis instead; the audit chain keeps the
// zero digest so every stored event has a non-empty linkage column.
func zeroAuditHash() string {
	return "0000000000000000000000000000000000000000000000000000000000000000"
}

type auditChainPayload struct {
	Version       string
	AgentID       string
	Seq           int64
	EventType     string
	PayloadHash   string
	PrevEventHash string
	CreatedAt     string
}

// CanonicalJSON writes the hash input with keys in fixed alphabetical
// order. Hand-written so the byte layout never shifts under encoder
// changes.
func (c auditChainPayload) CanonicalJSON() []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeAuditKV(buf, "agent_id", c.AgentID, false)
	writeAuditKV(buf, "created_at", c.CreatedAt, false)
	writeAuditKV(buf, "event_type", c.EventType, false)
	writeAuditKV(buf, "payload_hash", c.PayloadHash, false)
	writeAuditKV(buf, "prev_event_hash", c.PrevEventHash, false)
	writeAuditKVNumber(buf, "seq", c.Seq, false)
	writeAuditKV(buf, "v", c.Version, true)
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeAuditKV(buf *bytes.Buffer, key, value string, last bool) {
	writeAuditJSONString(buf, key)
	buf.WriteByte(':')
	writeAuditJSONString(buf, value)
	if !last {
		buf.WriteByte(',')
	}
}

func writeAuditKVNumber(buf *bytes.Buffer, key string, value int64, last bool) {
	writeAuditJSONString(buf, key)
	buf.WriteByte(':')
	buf.WriteString(strconv.FormatInt(value, 10))
	if !last {
		buf.WriteByte(',')
	}
}

func writeAuditJSONString(buf *bytes.Buffer, value string) {
	buf.WriteByte('"')
	for _, r := range value {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(auditHexLower[r>>4])
				buf.WriteByte(auditHexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

var auditHexLower = []byte("0123456789abcdef")
