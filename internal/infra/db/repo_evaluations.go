package db

import (
	"context"
	"encoding/json"
	"errors"

	"aci/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EvaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func (r *EvaluationRepository) Save(ctx context.Context, eval domain.TrustEvaluation) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := evaluationModelFromDomain(eval)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

func (r *EvaluationRepository) Get(ctx context.Context, agentID string) (*domain.TrustEvaluation, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TrustEvaluationModel
	err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	eval, err := evaluationFromModel(model)
	if err != nil {
		return nil, err
	}
	return &eval, nil
}

func (r *EvaluationRepository) ListAll(ctx context.Context) ([]domain.TrustEvaluation, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []TrustEvaluationModel
	if err := r.db.WithContext(ctx).Order("agent_id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.TrustEvaluation, 0, len(models))
	for _, model := range models {
		eval, err := evaluationFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, eval)
	}
	return out, nil
}

func evaluationModelFromDomain(eval domain.TrustEvaluation) (TrustEvaluationModel, error) {
	factorsJSON, err := json.Marshal(eval.PerFactorScores)
	if err != nil {
		return TrustEvaluationModel{}, err
	}
	blockedJSON, err := json.Marshal(eval.BlockedDimensions)
	if err != nil {
		return TrustEvaluationModel{}, err
	}
	return TrustEvaluationModel{
		AgentID:        eval.AgentID,
		TotalScore:     eval.TotalScore,
		Tier:           string(eval.Tier),
		TargetTier:     string(eval.TargetTier),
		FactorsJSON:    factorsJSON,
		BlockedJSON:    blockedJSON,
		CircuitBreaker: eval.CircuitBreaker,
		ScoreModifier:  eval.ScoreModifier,
		ComputedAt:     eval.ComputedAt.UTC(),
	}, nil
}

func evaluationFromModel(model TrustEvaluationModel) (domain.TrustEvaluation, error) {
	var factors map[string]float64
	if len(model.FactorsJSON) > 0 {
		if err := json.Unmarshal(model.FactorsJSON, &factors); err != nil {
			return domain.TrustEvaluation{}, err
		}
	}
	var blocked []string
	if len(model.BlockedJSON) > 0 {
		if err := json.Unmarshal(model.BlockedJSON, &blocked); err != nil {
			return domain.TrustEvaluation{}, err
		}
	}
	return domain.TrustEvaluation{
		AgentID:           model.AgentID,
		TotalScore:        model.TotalScore,
		Tier:              domain.TrustTier(model.Tier),
		TargetTier:        domain.TrustTier(model.TargetTier),
		PerFactorScores:   factors,
		BlockedDimensions: blocked,
		CircuitBreaker:    model.CircuitBreaker,
		ScoreModifier:     model.ScoreModifier,
		ComputedAt:        model.ComputedAt.UTC(),
	}, nil
}
