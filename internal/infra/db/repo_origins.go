package db

import (
	"context"
	"encoding/json"
	"errors"

	"aci/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OriginRepository struct {
	db *gorm.DB
}

func NewOriginRepository(db *gorm.DB) *OriginRepository {
	return &OriginRepository{db: db}
}

func (r *OriginRepository) Put(ctx context.Context, rec domain.OriginRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	model := OriginRecordModel{
		AgentID:    rec.AgentID,
		RecordJSON: recordJSON,
		RecordHash: string(rec.RecordHash),
		CreatedAt:  rec.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

func (r *OriginRepository) Get(ctx context.Context, agentID string) (*domain.OriginRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model OriginRecordModel
	err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.OriginRecord
	if err := json.Unmarshal(model.RecordJSON, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
