package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"aci/internal/domain"

	"gorm.io/gorm"
)

const (
	ledgerOwnership      = "ownership"
	ledgerAction         = "action"
	ledgerTransformation = "transformation"
)

// OwnershipLedgerRepository stores ownership records in the shared
// ledger_records table. Sequence assignment and prev-hash linkage are
// done inside one transaction with the per-ledger counter locked, so
// concurrent appends serialize rather than fork the chain.
type OwnershipLedgerRepository struct {
	db *gorm.DB
}

func NewOwnershipLedgerRepository(db *gorm.DB) *OwnershipLedgerRepository {
	return &OwnershipLedgerRepository{db: db}
}

func (r *OwnershipLedgerRepository) Append(ctx context.Context, rec domain.OwnershipRecord) (domain.OwnershipRecord, error) {
	if r.db == nil {
		return domain.OwnershipRecord{}, errDBUnavailable
	}
	var out domain.OwnershipRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextLedgerSeq(ctx, tx, rec.AgentID, ledgerOwnership, rec.Sequence)
		if err != nil {
			return err
		}
		rec.Sequence = seq
		rec.PrevHash = prevHash
		hash, err := domain.ComputeOwnershipRecordHash(rec)
		if err != nil {
			return err
		}
		rec.RecordHash = hash
		model, err := ledgerModelFromRecord(rec.AgentID, ledgerOwnership, rec.ChainLink, rec)
		if err != nil {
			return err
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.OwnershipRecord{}, err
	}
	return out, nil
}

func (r *OwnershipLedgerRepository) ListByAgent(ctx context.Context, agentID string) ([]domain.OwnershipRecord, error) {
	models, err := listLedgerModels(ctx, r.db, agentID, ledgerOwnership)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OwnershipRecord, 0, len(models))
	for _, model := range models {
		var rec domain.OwnershipRecord
		if err := json.Unmarshal(model.RecordJSON, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type ActionLedgerRepository struct {
	db *gorm.DB
}

func NewActionLedgerRepository(db *gorm.DB) *ActionLedgerRepository {
	return &ActionLedgerRepository{db: db}
}

func (r *ActionLedgerRepository) Append(ctx context.Context, rec domain.ActionRecord) (domain.ActionRecord, error) {
	if r.db == nil {
		return domain.ActionRecord{}, errDBUnavailable
	}
	var out domain.ActionRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextLedgerSeq(ctx, tx, rec.AgentID, ledgerAction, rec.Sequence)
		if err != nil {
			return err
		}
		rec.Sequence = seq
		rec.PrevHash = prevHash
		hash, err := domain.ComputeActionRecordHash(rec)
		if err != nil {
			return err
		}
		rec.RecordHash = hash
		model, err := ledgerModelFromRecord(rec.AgentID, ledgerAction, rec.ChainLink, rec)
		if err != nil {
			return err
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.ActionRecord{}, err
	}
	return out, nil
}

func (r *ActionLedgerRepository) ListByAgent(ctx context.Context, agentID string) ([]domain.ActionRecord, error) {
	models, err := listLedgerModels(ctx, r.db, agentID, ledgerAction)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ActionRecord, 0, len(models))
	for _, model := range models {
		var rec domain.ActionRecord
		if err := json.Unmarshal(model.RecordJSON, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type TransformationLedgerRepository struct {
	db *gorm.DB
}

func NewTransformationLedgerRepository(db *gorm.DB) *TransformationLedgerRepository {
	return &TransformationLedgerRepository{db: db}
}

func (r *TransformationLedgerRepository) Append(ctx context.Context, rec domain.TransformationRecord) (domain.TransformationRecord, error) {
	if r.db == nil {
		return domain.TransformationRecord{}, errDBUnavailable
	}
	var out domain.TransformationRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextLedgerSeq(ctx, tx, rec.AgentID, ledgerTransformation, rec.Sequence)
		if err != nil {
			return err
		}
		rec.Sequence = seq
		rec.PrevHash = prevHash
		hash, err := domain.ComputeTransformationRecordHash(rec)
		if err != nil {
			return err
		}
		rec.RecordHash = hash
		model, err := ledgerModelFromRecord(rec.AgentID, ledgerTransformation, rec.ChainLink, rec)
		if err != nil {
			return err
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.TransformationRecord{}, err
	}
	return out, nil
}

func (r *TransformationLedgerRepository) ListByAgent(ctx context.Context, agentID string) ([]domain.TransformationRecord, error) {
	models, err := listLedgerModels(ctx, r.db, agentID, ledgerTransformation)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TransformationRecord, 0, len(models))
	for _, model := range models {
		var rec domain.TransformationRecord
		if err := json.Unmarshal(model.RecordJSON, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// nextLedgerSeq reserves the next sequence slot for one agent's ledger
// and returns the hash of the record currently at the head. A requested
// sequence of zero means assign; any other value must equal the next
// slot or the append fails with domain.ErrSequenceConflict.
func nextLedgerSeq(ctx context.Context, tx *gorm.DB, agentID, ledger string, requested int64) (int64, *domain.Hash, error) {
	if agentID == "" {
		return 0, nil, errors.New("agent_id is required")
	}
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO agent_ledger_seq (agent_id, ledger, seq) VALUES (?, ?, 0) ON CONFLICT (agent_id, ledger) DO NOTHING",
		agentID, ledger,
	).Error; err != nil {
		return 0, nil, err
	}

	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM agent_ledger_seq WHERE agent_id = ? AND ledger = ? FOR UPDATE",
		agentID, ledger,
	).Scan(&currentSeq).Error; err != nil {
		return 0, nil, err
	}
	nextSeq := currentSeq + 1
	if requested != 0 && requested != nextSeq {
		return 0, nil, domain.ErrSequenceConflict
	}
	if err := tx.WithContext(ctx).Exec(
		"UPDATE agent_ledger_seq SET seq = ? WHERE agent_id = ? AND ledger = ?",
		nextSeq, agentID, ledger,
	).Error; err != nil {
		return 0, nil, err
	}

	if currentSeq == 0 {
		return nextSeq, nil, nil
	}
	var prev LedgerRecordModel
	if err := tx.WithContext(ctx).
		Where("agent_id = ? AND ledger = ? AND seq = ?", agentID, ledger, currentSeq).
		Take(&prev).Error; err != nil {
		return 0, nil, err
	}
	if prev.RecordHash == "" {
		return 0, nil, fmt.Errorf("missing head hash for agent %s ledger %s", agentID, ledger)
	}
	head := domain.Hash(prev.RecordHash)
	return nextSeq, &head, nil
}

func ledgerModelFromRecord(agentID, ledger string, link domain.ChainLink, rec any) (LedgerRecordModel, error) {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return LedgerRecordModel{}, err
	}
	var prevHash *string
	if link.PrevHash != nil {
		value := string(*link.PrevHash)
		prevHash = &value
	}
	return LedgerRecordModel{
		AgentID:    agentID,
		Ledger:     ledger,
		Seq:        link.Sequence,
		PrevHash:   prevHash,
		RecordHash: string(link.RecordHash),
		RecordJSON: recordJSON,
		RecordedAt: link.RecordedAt.UTC(),
	}, nil
}

func listLedgerModels(ctx context.Context, db *gorm.DB, agentID, ledger string) ([]LedgerRecordModel, error) {
	if db == nil {
		return nil, errDBUnavailable
	}
	var models []LedgerRecordModel
	err := db.WithContext(ctx).
		Where("agent_id = ? AND ledger = ?", agentID, ledger).
		Order("seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return models, nil
}
