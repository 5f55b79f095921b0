package memstore

import (
	"context"
	"sync"

	"aci/internal/domain"
)

// OriginStore keeps one origin record per agent.
type OriginStore struct {
	mu      sync.Mutex
	records map[string]domain.OriginRecord
}

func NewOriginStore() *OriginStore {
	return &OriginStore{records: make(map[string]domain.OriginRecord)}
}

func (s *OriginStore) Put(_ context.Context, rec domain.OriginRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.AgentID] = rec
	return nil
}

func (s *OriginStore) Get(_ context.Context, agentID string) (*domain.OriginRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[agentID]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

// OwnershipLedger is an append-only hash chain per agent. Append assigns
// sequence and prev hash under the ledger lock; a caller-supplied
// sequence that does not match the next slot is rejected with
// domain.ErrSequenceConflict.
type OwnershipLedger struct {
	mu      sync.Mutex
	records map[string][]domain.OwnershipRecord
}

func NewOwnershipLedger() *OwnershipLedger {
	return &OwnershipLedger{records: make(map[string][]domain.OwnershipRecord)}
}

func (l *OwnershipLedger) Append(_ context.Context, rec domain.OwnershipRecord) (domain.OwnershipRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.records[rec.AgentID]
	var prev *domain.Hash
	if len(list) > 0 {
		h := list[len(list)-1].RecordHash
		prev = &h
	}
	seq, err := nextLedgerSeq(rec.Sequence, int64(len(list)))
	if err != nil {
		return domain.OwnershipRecord{}, err
	}
	rec.Sequence = seq
	rec.PrevHash = prev
	hash, err := domain.ComputeOwnershipRecordHash(rec)
	if err != nil {
		return domain.OwnershipRecord{}, err
	}
	rec.RecordHash = hash
	l.records[rec.AgentID] = append(list, rec)
	return rec, nil
}

func (l *OwnershipLedger) ListByAgent(_ context.Context, agentID string) ([]domain.OwnershipRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.OwnershipRecord, len(l.records[agentID]))
	copy(out, l.records[agentID])
	return out, nil
}

// ActionLedger is an append-only hash chain of actions per agent.
type ActionLedger struct {
	mu      sync.Mutex
	records map[string][]domain.ActionRecord
}

func NewActionLedger() *ActionLedger {
	return &ActionLedger{records: make(map[string][]domain.ActionRecord)}
}

func (l *ActionLedger) Append(_ context.Context, rec domain.ActionRecord) (domain.ActionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.records[rec.AgentID]
	var prev *domain.Hash
	if len(list) > 0 {
		h := list[len(list)-1].RecordHash
		prev = &h
	}
	seq, err := nextLedgerSeq(rec.Sequence, int64(len(list)))
	if err != nil {
		return domain.ActionRecord{}, err
	}
	rec.Sequence = seq
	rec.PrevHash = prev
	hash, err := domain.ComputeActionRecordHash(rec)
	if err != nil {
		return domain.ActionRecord{}, err
	}
	rec.RecordHash = hash
	l.records[rec.AgentID] = append(list, rec)
	return rec, nil
}

func (l *ActionLedger) ListByAgent(_ context.Context, agentID string) ([]domain.ActionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ActionRecord, len(l.records[agentID]))
	copy(out, l.records[agentID])
	return out, nil
}

// TransformationLedger is an append-only hash chain of instruction and
// model changes per agent.
type TransformationLedger struct {
	mu      sync.Mutex
	records map[string][]domain.TransformationRecord
}

func NewTransformationLedger() *TransformationLedger {
	return &TransformationLedger{records: make(map[string][]domain.TransformationRecord)}
}

func (l *TransformationLedger) Append(_ context.Context, rec domain.TransformationRecord) (domain.TransformationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.records[rec.AgentID]
	var prev *domain.Hash
	if len(list) > 0 {
		h := list[len(list)-1].RecordHash
		prev = &h
	}
	seq, err := nextLedgerSeq(rec.Sequence, int64(len(list)))
	if err != nil {
		return domain.TransformationRecord{}, err
	}
	rec.Sequence = seq
	rec.PrevHash = prev
	hash, err := domain.ComputeTransformationRecordHash(rec)
	if err != nil {
		return domain.TransformationRecord{}, err
	}
	rec.RecordHash = hash
	l.records[rec.AgentID] = append(list, rec)
	return rec, nil
}

func (l *TransformationLedger) ListByAgent(_ context.Context, agentID string) ([]domain.TransformationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.TransformationRecord, len(l.records[agentID]))
	copy(out, l.records[agentID])
	return out, nil
}

// nextLedgerSeq resolves the sequence for a new record. Zero means the
// store assigns; any other value must name the next open slot.
func nextLedgerSeq(requested, existing int64) (int64, error) {
	next := existing + 1
	if requested != 0 && requested != next {
		return 0, domain.ErrSequenceConflict
	}
	return next, nil
}
