package model

import (
	"time"

	"gorm.io/datatypes"
)

// CompanionUnlock 奖励解锁记录，(child_id, type) 唯一
type CompanionUnlock struct {
	ID       int64          `gorm:"primaryKey" json:"id"`
	ChildID  string         `gorm:"size:36;not null;uniqueIndex:idx_child_unlock_type,priority:1" json:"child_id"`
	Type     string         `gorm:"size:50;not null;uniqueIndex:idx_child_unlock_type,priority:2" json:"type"`
	Meta     datatypes.JSON `json:"meta,omitempty"`
	EarnedAt time.Time      `gorm:"not null" json:"earned_at"`
}

func (CompanionUnlock) TableName() string {
	return "companion_unlocks"
}
