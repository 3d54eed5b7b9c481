package dto

import "encoding/json"

// EnqueueJobRequest 提交分析任务请求，会话不存在时一并创建
type EnqueueJobRequest struct {
	SessionID  string `json:"session_id" binding:"required,max=36"`
	ChildID    string `json:"child_id" binding:"required,max=36"`
	MediaRef   string `json:"media_ref" binding:"required,max=500"`
	ScenarioID string `json:"scenario_id,omitempty" binding:"omitempty,max=36"`
	ModuleID   string `json:"module_id,omitempty" binding:"omitempty,max=36"`
}

// EnqueueJobResponse 提交分析任务响应
type EnqueueJobResponse struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// JobDetail 任务详情
type JobDetail struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	ChildID      string          `json:"child_id"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    string          `json:"created_at"`
	StartedAt    string          `json:"started_at,omitempty"`
	FinishedAt   string          `json:"finished_at,omitempty"`
}

// SessionAnalysis 练习记录上镜像的分析结果
type SessionAnalysis struct {
	SessionID    string          `json:"session_id"`
	ChildID      string          `json:"child_id"`
	JobID        string          `json:"job_id"`
	OverallScore float64         `json:"overall_score"`
	CompletedAt  string          `json:"completed_at"`
	Result       json.RawMessage `json:"result"`
}

// UnlockItem 奖励解锁项
type UnlockItem struct {
	Type     string          `json:"type"`
	Meta     json.RawMessage `json:"meta,omitempty"`
	EarnedAt string          `json:"earned_at"`
}

// QueueStats 队列各阶段消息数
type QueueStats struct {
	Ready      int64 `json:"ready"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// HealthResponse 健康检查
type HealthResponse struct {
	Status   string      `json:"status"`
	Database string      `json:"database"`
	Redis    string      `json:"redis"`
	Queue    *QueueStats `json:"queue,omitempty"`
}
