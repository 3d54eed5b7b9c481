package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/chirp_analysis/internal/model"
)

type ScenarioRepository struct {
	db *gorm.DB
}

func NewScenarioRepository(db *gorm.DB) *ScenarioRepository {
	return &ScenarioRepository{db: db}
}

func (r *ScenarioRepository) Create(ctx context.Context, scenario *model.Scenario) error {
	return r.db.WithContext(ctx).Create(scenario).Error
}

// GetRubric 返回场景的评分规则原始 JSON，场景没有配置时返回 nil
func (r *ScenarioRepository) GetRubric(ctx context.Context, scenarioID string) ([]byte, error) {
	var scenario model.Scenario
	err := r.db.WithContext(ctx).Select("id", "rubric").Where("id = ?", scenarioID).First(&scenario).Error
	if err != nil {
		return nil, translate(err)
	}
	if !model.HasJSON(scenario.Rubric) {
		return nil, nil
	}
	return []byte(scenario.Rubric), nil
}
