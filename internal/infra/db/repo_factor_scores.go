package db

import (
	"context"

	"aci/internal/domain"

	"gorm.io/gorm"
)

type FactorScoreRepository struct {
	db *gorm.DB
}

func NewFactorScoreRepository(db *gorm.DB) *FactorScoreRepository {
	return &FactorScoreRepository{db: db}
}

func (r *FactorScoreRepository) Append(ctx context.Context, agentID string, score domain.FactorScore) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := FactorScoreModel{
		AgentID:    agentID,
		Code:       score.Code,
		Score:      score.Score,
		Confidence: score.Confidence,
		Source:     string(score.Source),
		RecordedAt: score.RecordedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *FactorScoreRepository) Latest(ctx context.Context, agentID string) (map[string]domain.FactorScore, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []FactorScoreModel
	// DISTINCT ON keeps the newest row per factor code.
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (code) * FROM factor_scores
		     WHERE agent_id = ?
		     ORDER BY code, recorded_at DESC, id DESC`, agentID).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.FactorScore, len(models))
	for _, model := range models {
		out[model.Code] = factorScoreFromModel(model)
	}
	return out, nil
}

func (r *FactorScoreRepository) ListAgents(ctx context.Context) ([]string, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var agents []string
	err := r.db.WithContext(ctx).
		Model(&FactorScoreModel{}).
		Distinct("agent_id").
		Order("agent_id ASC").
		Pluck("agent_id", &agents).Error
	if err != nil {
		return nil, err
	}
	return agents, nil
}

func factorScoreFromModel(model FactorScoreModel) domain.FactorScore {
	return domain.FactorScore{
		Code:       model.Code,
		Score:      model.Score,
		Confidence: model.Confidence,
		Source:     domain.FactorSource(model.Source),
		RecordedAt: model.RecordedAt.UTC(),
	}
}
