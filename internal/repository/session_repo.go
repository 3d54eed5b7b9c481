package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/chirp_analysis/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

// AttachAnalysis 把任务结果镜像到练习记录上
func (r *SessionRepository) AttachAnalysis(ctx context.Context, sessionID, jobID string, resultJSON []byte, overall float64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"analysis_ref":  jobID,
			"result_json":   datatypes.JSON(resultJSON),
			"overall_score": overall,
			"completed_at":  at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompletedStats 孩子已完成分析的练习数和平均总分
func (r *SessionRepository) CompletedStats(ctx context.Context, childID string) (int64, float64, error) {
	var row struct {
		Total    int64
		AvgScore float64
	}
	err := r.db.WithContext(ctx).Model(&model.Session{}).
		Select("COUNT(*) AS total, COALESCE(AVG(overall_score), 0) AS avg_score").
		Where("child_id = ? AND analysis_ref IS NOT NULL", childID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Total, row.AvgScore, nil
}
