package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/chirp_analysis/internal/model"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *model.AnalysisJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

// FindInFlight 获取练习下 PENDING 或 RUNNING 的任务
func (r *JobRepository) FindInFlight(ctx context.Context, sessionID string) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status IN ?", sessionID, []string{model.JobStatusPending, model.JobStatusRunning}).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

// MarkRunning 进入 RUNNING。DONE 的任务不允许再次执行；
// 队列重投时行可能停留在 FAILED（上次失败）或 RUNNING（worker 崩溃）
func (r *JobRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("id = ? AND status <> ?", id, model.JobStatusDone).
		Updates(map[string]interface{}{
			"status":        model.JobStatusRunning,
			"started_at":    startedAt,
			"error_message": nil,
			"finished_at":   nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// MarkDone 写入结果，只能从 RUNNING 转入
func (r *JobRepository) MarkDone(ctx context.Context, id string, resultJSON []byte, finishedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":        model.JobStatusDone,
			"result_json":   datatypes.JSON(resultJSON),
			"error_message": nil,
			"finished_at":   finishedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// MarkFailed 记录失败原因并累加重试次数
func (r *JobRepository) MarkFailed(ctx context.Context, id string, errMsg string, finishedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("id = ? AND status <> ?", id, model.JobStatusDone).
		Updates(map[string]interface{}{
			"status":        model.JobStatusFailed,
			"error_message": errMsg,
			"result_json":   nil,
			"finished_at":   finishedAt,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ListByStatus 获取指定状态且创建时间早于 before 的任务
func (r *JobRepository) ListByStatus(ctx context.Context, status string, before time.Time, limit int) ([]*model.AnalysisJob, error) {
	var jobs []*model.AnalysisJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", status, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}
