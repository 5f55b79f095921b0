package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BreakerRepository struct {
	db *gorm.DB
}

func NewBreakerRepository(db *gorm.DB) *BreakerRepository {
	return &BreakerRepository{db: db}
}

func (r *BreakerRepository) Trip(ctx context.Context, agentID string, reason string, at time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := BreakerStateModel{
		AgentID:   agentID,
		Tripped:   true,
		Reason:    reason,
		TrippedAt: at.UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

func (r *BreakerRepository) Get(ctx context.Context, agentID string) (bool, string, error) {
	if r.db == nil {
		return false, "", errDBUnavailable
	}
	var model BreakerStateModel
	err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return model.Tripped, model.Reason, nil
}

func (r *BreakerRepository) Reset(ctx context.Context, agentID string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Delete(&BreakerStateModel{}).Error
}
