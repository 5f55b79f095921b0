package db

import (
	"context"
	"encoding/json"
	"errors"

	"aci/internal/domain"

	"gorm.io/gorm"
)

type GatingRunRepository struct {
	db *gorm.DB
}

func NewGatingRunRepository(db *gorm.DB) *GatingRunRepository {
	return &GatingRunRepository{db: db}
}

func (r *GatingRunRepository) SaveRun(ctx context.Context, run domain.GatingRun) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if run.RunID == "" {
		id, err := newUUID()
		if err != nil {
			return err
		}
		run.RunID = id
	}
	decisionsJSON, err := json.Marshal(run.Decisions)
	if err != nil {
		return err
	}
	model := GatingRunModel{
		RunID:         run.RunID,
		DecisionsJSON: decisionsJSON,
		StartedAt:     run.StartedAt.UTC(),
		FinishedAt:    run.FinishedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *GatingRunRepository) LastRun(ctx context.Context) (*domain.GatingRun, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model GatingRunModel
	err := r.db.WithContext(ctx).Order("finished_at DESC").Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var decisions []domain.GatingDecision
	if len(model.DecisionsJSON) > 0 {
		if err := json.Unmarshal(model.DecisionsJSON, &decisions); err != nil {
			return nil, err
		}
	}
	return &domain.GatingRun{
		RunID:      model.RunID,
		Decisions:  decisions,
		StartedAt:  model.StartedAt.UTC(),
		FinishedAt: model.FinishedAt.UTC(),
	}, nil
}
