package db

import (
	"context"

	"aci/internal/domain"

	"gorm.io/gorm"
)

type ProbeResultRepository struct {
	db *gorm.DB
}

func NewProbeResultRepository(db *gorm.DB) *ProbeResultRepository {
	return &ProbeResultRepository{db: db}
}

func (r *ProbeResultRepository) Append(ctx context.Context, result domain.CanaryProbeResult) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := ProbeResultModel{
		AgentID:                 result.AgentID,
		ProbeID:                 result.ProbeID,
		Category:                string(result.Category),
		Passed:                  result.Passed,
		ActualResponse:          result.ActualResponse,
		ResponseTimeMs:          result.ResponseTimeMs,
		FailureReason:           stringPtrIfNotEmpty(result.FailureReason),
		TriggeredCircuitBreaker: result.TriggeredCircuitBreaker,
		DegradedValidation:      result.DegradedValidation,
		ExecutedAt:              result.ExecutedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *ProbeResultRepository) ListByAgent(ctx context.Context, agentID string) ([]domain.CanaryProbeResult, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []ProbeResultModel
	err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("executed_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.CanaryProbeResult, 0, len(models))
	for _, model := range models {
		out = append(out, domain.CanaryProbeResult{
			ProbeID:                 model.ProbeID,
			AgentID:                 model.AgentID,
			Passed:                  model.Passed,
			ActualResponse:          model.ActualResponse,
			ResponseTimeMs:          model.ResponseTimeMs,
			ExecutedAt:              model.ExecutedAt.UTC(),
			FailureReason:           stringValue(model.FailureReason),
			TriggeredCircuitBreaker: model.TriggeredCircuitBreaker,
			DegradedValidation:      model.DegradedValidation,
			Category:                domain.ProbeCategory(model.Category),
		})
	}
	return out, nil
}
