package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// 任务状态
const (
	JobStatusPending = "PENDING"
	JobStatusRunning = "RUNNING"
	JobStatusDone    = "DONE"
	JobStatusFailed  = "FAILED"
)

// AnalysisJob 一次媒体上传对应一个分析任务，ID 同时也是队列消息 ID
type AnalysisJob struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	SessionID    string         `gorm:"size:36;not null;index" json:"session_id"`
	ChildID      string         `gorm:"size:36;not null;index" json:"child_id"`
	Status       string         `gorm:"size:20;default:PENDING;index" json:"status"`
	ResultJSON   datatypes.JSON `gorm:"column:result_json" json:"result_json,omitempty"`
	ErrorMessage *string        `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int            `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

// HasResult 是否已写入分析结果
func (j *AnalysisJob) HasResult() bool {
	return HasJSON(j.ResultJSON)
}

// HasJSON JSON 列为 NULL 时 Scan 得到 "null"
func HasJSON(v datatypes.JSON) bool {
	s := strings.TrimSpace(string(v))
	return s != "" && s != "null"
}
