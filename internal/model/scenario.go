package model

import (
	"time"

	"gorm.io/datatypes"
)

// Scenario 练习场景，Rubric 为可选的评分规则覆盖
type Scenario struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	Title     string         `gorm:"size:200" json:"title"`
	Rubric    datatypes.JSON `json:"rubric,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Scenario) TableName() string {
	return "scenarios"
}

// AllModels 需要自动迁移的模型
func AllModels() []interface{} {
	return []interface{}{
		&AnalysisJob{},
		&Session{},
		&CompanionUnlock{},
		&Scenario{},
	}
}
