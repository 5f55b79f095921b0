package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Chain format versions. Bumping one invalidates existing hashes for
// that ledger, so they only change with a migration.
const (
	OriginChainVersion         = "origin_v1"
	OwnershipChainVersion      = "ownership_chain_v1"
	ActionChainVersion         = "action_chain_v1"
	TransformationChainVersion = "transformation_chain_v1"
)

// SHA256Hex hashes input and returns the lowercase hex digest.
func SHA256Hex(input []byte) Hash {
	sum := sha256.Sum256(input)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashSystemPrompt hashes a system prompt exactly as stored; identical
// input always yields an identical hash.
func HashSystemPrompt(prompt string) Hash {
	return SHA256Hex([]byte(prompt))
}

// ComputeOwnershipRecordHash hashes the record's canonical form,
// excluding RecordHash itself and including PrevHash.
func ComputeOwnershipRecordHash(rec OwnershipRecord) (Hash, error) {
	if rec.AgentID == "" || rec.PrincipalID == "" || rec.Role == "" || rec.TransferType == "" {
		return "", errors.New("ownership record missing required fields")
	}
	if err := checkLink(rec.ChainLink); err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeKV(buf, "agent_id", rec.AgentID)
	writeKeyArray(buf, "capabilities", rec.Capabilities)
	writeKVTimePtr(buf, "expires_at", rec.ExpiresAt)
	writeKV(buf, "from_principal", rec.FromPrincipal)
	writeKVHashPtr(buf, "prev_hash", rec.PrevHash)
	writeKV(buf, "principal_id", rec.PrincipalID)
	writeKV(buf, "recorded_at", canonicalTime(rec.RecordedAt))
	writeKV(buf, "role", string(rec.Role))
	writeKVNumber(buf, "seq", rec.Sequence)
	writeKV(buf, "transfer_type", string(rec.TransferType))
	writeKVLast(buf, "v", OwnershipChainVersion)
	buf.WriteByte('}')
	return SHA256Hex(buf.Bytes()), nil
}

// ComputeActionRecordHash hashes the record's canonical form.
func ComputeActionRecordHash(rec ActionRecord) (Hash, error) {
	if rec.AgentID == "" || rec.ActionType == "" || rec.Name == "" {
		return "", errors.New("action record missing required fields")
	}
	if err := checkLink(rec.ChainLink); err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeKV(buf, "action_type", string(rec.ActionType))
	writeKV(buf, "agent_id", rec.AgentID)
	writeKV(buf, "name", rec.Name)
	writeKV(buf, "payload_hash", string(rec.PayloadHash))
	writeKVHashPtr(buf, "prev_hash", rec.PrevHash)
	writeKV(buf, "recorded_at", canonicalTime(rec.RecordedAt))
	writeKVNumber(buf, "seq", rec.Sequence)
	writeKV(buf, "tier", string(rec.TierAtAction))
	writeKVNumber(buf, "trust_score", int64(rec.TrustScoreAtAction))
	writeKVLast(buf, "v", ActionChainVersion)
	buf.WriteByte('}')
	return SHA256Hex(buf.Bytes()), nil
}

// ComputeTransformationRecordHash hashes the record's canonical form.
func ComputeTransformationRecordHash(rec TransformationRecord) (Hash, error) {
	if rec.AgentID == "" || rec.Type == "" || rec.AfterHash == "" {
		return "", errors.New("transformation record missing required fields")
	}
	if err := checkLink(rec.ChainLink); err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeKV(buf, "after_hash", string(rec.AfterHash))
	writeKV(buf, "agent_id", rec.AgentID)
	writeKV(buf, "before_hash", string(rec.BeforeHash))
	writeKV(buf, "changed_by", rec.ChangedBy)
	writeKV(buf, "description", rec.Description)
	writeKVHashPtr(buf, "prev_hash", rec.PrevHash)
	writeKV(buf, "recorded_at", canonicalTime(rec.RecordedAt))
	writeKVNumber(buf, "seq", rec.Sequence)
	writeKV(buf, "type", string(rec.Type))
	writeKVNumber(buf, "version", int64(rec.Version))
	writeKVLast(buf, "v", TransformationChainVersion)
	buf.WriteByte('}')
	return SHA256Hex(buf.Bytes()), nil
}

// ComputeOriginRecordHash hashes the immutable creation fields of an
// origin record. Instruction versions are excluded: each carries its own
// hash and evolves through the transformation ledger.
func ComputeOriginRecordHash(rec OriginRecord) (Hash, error) {
	if rec.AgentID == "" || rec.CreationType == "" {
		return "", errors.New("origin record missing required fields")
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeKV(buf, "agent_id", rec.AgentID)
	writeKV(buf, "created_at", canonicalTime(rec.CreatedAt))
	writeKV(buf, "creation_type", string(rec.CreationType))
	writeKeyArray(buf, "creators", rec.Creators)
	writeKeyArray(buf, "data_sources", rec.DataSources)
	writeLineage(buf, rec.ModelLineage)
	writeKV(buf, "parent_agent_id", rec.ParentAgentID)
	writeKVLast(buf, "v", OriginChainVersion)
	buf.WriteByte('}')
	return SHA256Hex(buf.Bytes()), nil
}

// VerifyOrigin checks an origin record's integrity: the base record
// hash, every instruction version hash, and that
// CurrentInstructionHash matches the latest version.
func VerifyOrigin(rec *OriginRecord) ChainVerification {
	if rec == nil {
		return ChainVerification{Valid: false, Errors: []string{"origin record missing"}}
	}
	var errs []string
	expected, err := ComputeOriginRecordHash(*rec)
	if err != nil {
		errs = append(errs, fmt.Sprintf("origin hash compute failed: %v", err))
	} else if expected != rec.RecordHash {
		return ChainVerification{
			Valid:        false,
			BrokenAt:     1,
			ExpectedHash: expected,
			ActualHash:   rec.RecordHash,
			Errors:       []string{"origin record hash mismatch"},
		}
	}
	for _, instr := range rec.Instructions {
		if HashSystemPrompt(instr.SystemPrompt) != instr.Hash {
			errs = append(errs, fmt.Sprintf("instruction version %d hash mismatch", instr.Version))
		}
	}
	if n := len(rec.Instructions); n > 0 {
		if rec.CurrentInstructionHash != rec.Instructions[n-1].Hash {
			errs = append(errs, "current instruction hash does not match latest version")
		}
	} else if rec.CurrentInstructionHash != "" {
		errs = append(errs, "current instruction hash set without instruction versions")
	}
	return ChainVerification{Valid: len(errs) == 0, Errors: errs}
}

// HasInstructionChanged reports whether a live system prompt has drifted
// from the origin's recorded instruction, i.e. it changed outside the
// sanctioned update path.
func HasInstructionChanged(rec *OriginRecord, livePrompt string) bool {
	if rec == nil {
		return true
	}
	return HashSystemPrompt(livePrompt) != rec.CurrentInstructionHash
}

// chainRecord lets the shared verifier walk any of the typed ledgers.
type chainRecord interface {
	Link() ChainLink
	Recompute() (Hash, error)
}

func (r OwnershipRecord) Link() ChainLink          { return r.ChainLink }
func (r OwnershipRecord) Recompute() (Hash, error) { return ComputeOwnershipRecordHash(r) }

func (r ActionRecord) Link() ChainLink          { return r.ChainLink }
func (r ActionRecord) Recompute() (Hash, error) { return ComputeActionRecordHash(r) }

func (r TransformationRecord) Link() ChainLink          { return r.ChainLink }
func (r TransformationRecord) Recompute() (Hash, error) { return ComputeTransformationRecordHash(r) }

// VerifyOwnershipChain verifies hash integrity and prev-hash linkage of
// an ownership ledger.
func VerifyOwnershipChain(records []OwnershipRecord) ChainVerification {
	sorted := make([]chainRecord, len(records))
	for i := range records {
		sorted[i] = records[i]
	}
	return verifyChain(sortChainRecords(sorted))
}

// VerifyActionChain verifies an action ledger.
func VerifyActionChain(records []ActionRecord) ChainVerification {
	sorted := make([]chainRecord, len(records))
	for i := range records {
		sorted[i] = records[i]
	}
	return verifyChain(sortChainRecords(sorted))
}

// VerifyTransformationChain verifies a transformation ledger.
func VerifyTransformationChain(records []TransformationRecord) ChainVerification {
	sorted := make([]chainRecord, len(records))
	for i := range records {
		sorted[i] = records[i]
	}
	return verifyChain(sortChainRecords(sorted))
}

// sortChainRecords orders the already-copied slice by sequence so the
// callers' input slices are never reordered.
func sortChainRecords(records []chainRecord) []chainRecord {
	sort.Slice(records, func(i, j int) bool { return records[i].Link().Sequence < records[j].Link().Sequence })
	return records
}

// verifyChain walks records already sorted by sequence, recomputing each
// record hash and checking the prev-hash linkage. The first mismatch is
// reported with both hashes.
func verifyChain(records []chainRecord) ChainVerification {
	var prev *Hash
	expectedSeq := int64(1)
	for _, rec := range records {
		link := rec.Link()
		if link.Sequence != expectedSeq {
			return ChainVerification{
				Valid:    false,
				BrokenAt: link.Sequence,
				Errors:   []string{fmt.Sprintf("sequence gap: expected %d got %d", expectedSeq, link.Sequence)},
			}
		}
		if !hashPtrEqual(link.PrevHash, prev) {
			return ChainVerification{
				Valid:        false,
				BrokenAt:     link.Sequence,
				ExpectedHash: hashPtrValue(prev),
				ActualHash:   hashPtrValue(link.PrevHash),
				Errors:       []string{fmt.Sprintf("prev hash mismatch at seq %d", link.Sequence)},
			}
		}
		expected, err := rec.Recompute()
		if err != nil {
			return ChainVerification{
				Valid:    false,
				BrokenAt: link.Sequence,
				Errors:   []string{fmt.Sprintf("hash compute failed at seq %d: %v", link.Sequence, err)},
			}
		}
		if expected != link.RecordHash {
			return ChainVerification{
				Valid:        false,
				BrokenAt:     link.Sequence,
				ExpectedHash: expected,
				ActualHash:   link.RecordHash,
				Errors:       []string{fmt.Sprintf("record hash mismatch at seq %d", link.Sequence)},
			}
		}
		h := link.RecordHash
		prev = &h
		expectedSeq++
	}
	return ChainVerification{Valid: true}
}

func checkLink(link ChainLink) error {
	if link.Sequence < 1 {
		return errors.New("sequence must be >= 1")
	}
	if link.Sequence == 1 && link.PrevHash != nil {
		return errors.New("genesis record must not carry a prev hash")
	}
	if link.Sequence > 1 && link.PrevHash == nil {
		return errors.New("non-genesis record requires a prev hash")
	}
	if link.RecordedAt.IsZero() {
		return errors.New("recorded_at is required")
	}
	return nil
}

func hashPtrEqual(a, b *Hash) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func hashPtrValue(h *Hash) Hash {
	if h == nil {
		return ""
	}
	return *h
}

func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func writeKV(buf *bytes.Buffer, key, value string) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	writeJSONString(buf, value)
	buf.WriteByte(',')
}

func writeKVLast(buf *bytes.Buffer, key, value string) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	writeJSONString(buf, value)
}

func writeKVNumber(buf *bytes.Buffer, key string, value int64) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	buf.WriteString(strconv.FormatInt(value, 10))
	buf.WriteByte(',')
}

func writeKVHashPtr(buf *bytes.Buffer, key string, value *Hash) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	if value == nil {
		buf.WriteString("null")
	} else {
		writeJSONString(buf, string(*value))
	}
	buf.WriteByte(',')
}

func writeKVTimePtr(buf *bytes.Buffer, key string, value *time.Time) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	if value == nil {
		buf.WriteString("null")
	} else {
		writeJSONString(buf, canonicalTime(*value))
	}
	buf.WriteByte(',')
}

func writeKeyArray(buf *bytes.Buffer, key string, values []string) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	buf.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, v)
	}
	buf.WriteByte(']')
	buf.WriteByte(',')
}

func writeLineage(buf *bytes.Buffer, lineage []ModelRef) {
	writeJSONString(buf, "model_lineage")
	buf.WriteByte(':')
	buf.WriteByte('[')
	for i, ref := range lineage {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		writeKV(buf, "family", ref.Family)
		writeKV(buf, "provider", ref.Provider)
		writeKV(buf, "version", ref.Version)
		writeKVLast(buf, "weights_hash", string(ref.WeightsHash))
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	buf.WriteByte(',')
}

func writeJSONString(buf *bytes.Buffer, value string) {
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
				buf.WriteByte(hexLower[r>>4])
				buf.WriteByte(hexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

var hexLower = []byte("0123456789abcdef")
