package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"aci/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProbeStateRepository struct {
	db *gorm.DB
}

func NewProbeStateRepository(db *gorm.DB) *ProbeStateRepository {
	return &ProbeStateRepository{db: db}
}

func (r *ProbeStateRepository) LastProbeTime(ctx context.Context, agentID string) (time.Time, bool, error) {
	if r.db == nil {
		return time.Time{}, false, errDBUnavailable
	}
	var model ProbeStateModel
	err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if model.LastProbeAt == nil {
		return time.Time{}, false, nil
	}
	return model.LastProbeAt.UTC(), true, nil
}

func (r *ProbeStateRepository) SetLastProbeTime(ctx context.Context, agentID string, t time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	at := t.UTC()
	model := ProbeStateModel{AgentID: agentID, LastProbeAt: &at}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_probe_at"}),
		}).
		Create(&model).Error
}

func (r *ProbeStateRepository) Stats(ctx context.Context, agentID string) (domain.CanaryProbeStats, error) {
	if r.db == nil {
		return domain.CanaryProbeStats{}, errDBUnavailable
	}
	var model ProbeStateModel
	err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && len(model.StatsJSON) == 0) {
		return domain.CanaryProbeStats{AgentID: agentID}, nil
	}
	if err != nil {
		return domain.CanaryProbeStats{}, err
	}
	var stats domain.CanaryProbeStats
	if err := json.Unmarshal(model.StatsJSON, &stats); err != nil {
		return domain.CanaryProbeStats{}, err
	}
	if stats.AgentID == "" {
		stats.AgentID = agentID
	}
	return stats, nil
}

func (r *ProbeStateRepository) SaveStats(ctx context.Context, stats domain.CanaryProbeStats) error {
	if r.db == nil {
		return errDBUnavailable
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	model := ProbeStateModel{AgentID: stats.AgentID, StatsJSON: statsJSON}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"stats_json"}),
		}).
		Create(&model).Error
}
