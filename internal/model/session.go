package model

import (
	"time"

	"gorm.io/datatypes"
)

// Session 一次对话练习记录，分析结果在这里做镜像以便快速读取
type Session struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	ChildID      string         `gorm:"size:36;not null;index" json:"child_id"`
	MediaRef     string         `gorm:"size:500" json:"media_ref"`
	ScenarioID   *string        `gorm:"size:36;index" json:"scenario_id,omitempty"`
	ModuleID     *string        `gorm:"size:36" json:"module_id,omitempty"`
	AnalysisRef  *string        `gorm:"size:36" json:"analysis_ref,omitempty"`
	ResultJSON   datatypes.JSON `gorm:"column:result_json" json:"result_json,omitempty"`
	OverallScore *float64       `json:"overall_score,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}
