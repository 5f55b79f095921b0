package db

import (
	"context"
	"errors"
	"time"

	"aci/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TierStateRepository struct {
	db *gorm.DB
}

func NewTierStateRepository(db *gorm.DB) *TierStateRepository {
	return &TierStateRepository{db: db}
}

func (r *TierStateRepository) Current(ctx context.Context, agentID string) (domain.TrustTier, bool, error) {
	if r.db == nil {
		return "", false, errDBUnavailable
	}
	var model TierStateModel
	err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.TrustTier(model.Tier), true, nil
}

func (r *TierStateRepository) Set(ctx context.Context, agentID string, tier domain.TrustTier, at time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := TierStateModel{
		AgentID:   agentID,
		Tier:      string(tier),
		ChangedAt: at.UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}
