package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/chirp_analysis/internal/model"
)

type UnlockRepository struct {
	db *gorm.DB
}

func NewUnlockRepository(db *gorm.DB) *UnlockRepository {
	return &UnlockRepository{db: db}
}

// ListTypes 获取孩子已解锁的奖励类型
func (r *UnlockRepository) ListTypes(ctx context.Context, childID string) ([]string, error) {
	var types []string
	err := r.db.WithContext(ctx).Model(&model.CompanionUnlock{}).
		Where("child_id = ?", childID).
		Pluck("type", &types).Error
	return types, err
}

// CreateIfAbsent 插入解锁记录，(child_id, type) 已存在时不插入并返回 false
func (r *UnlockRepository) CreateIfAbsent(ctx context.Context, unlock *model.CompanionUnlock) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "child_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(unlock)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByChild 按获得时间倒序列出解锁记录
func (r *UnlockRepository) ListByChild(ctx context.Context, childID string) ([]*model.CompanionUnlock, error) {
	var unlocks []*model.CompanionUnlock
	err := r.db.WithContext(ctx).
		Where("child_id = ?", childID).
		Order("earned_at DESC").
		Find(&unlocks).Error
	return unlocks, err
}
