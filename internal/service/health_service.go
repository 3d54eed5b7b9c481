package service

import (
	"context"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/qs3c/chirp_analysis/internal/model/dto"
	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
)

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

// QueueInspector 读取队列统计
type QueueInspector interface {
	Stats(ctx context.Context) (*queue.Stats, error)
}

type HealthService struct {
	db    *gorm.DB
	rdb   *redis.Client
	queue QueueInspector
}

func NewHealthService(db *gorm.DB, rdb *redis.Client, queue QueueInspector) *HealthService {
	return &HealthService{db: db, rdb: rdb, queue: queue}
}

// Check 检查数据库、Redis 与队列
func (s *HealthService) Check(ctx context.Context) *dto.HealthResponse {
	resp := &dto.HealthResponse{
		Status:   HealthOK,
		Database: s.checkDatabase(ctx),
		Redis:    HealthDown,
	}

	if s.rdb != nil && s.rdb.Ping(ctx).Err() == nil {
		resp.Redis = HealthOK
	}

	if resp.Redis == HealthOK && s.queue != nil {
		if stats, err := s.queue.Stats(ctx); err == nil {
			resp.Queue = &dto.QueueStats{
				Ready:      stats.Ready,
				Processing: stats.Processing,
				Delayed:    stats.Delayed,
				Dead:       stats.Dead,
			}
		}
	}

	if resp.Database != HealthOK || resp.Redis != HealthOK {
		resp.Status = HealthDegraded
	}
	return resp
}

func (s *HealthService) checkDatabase(ctx context.Context) string {
	if s.db == nil {
		return HealthDown
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return HealthDown
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return HealthDown
	}
	return HealthOK
}
