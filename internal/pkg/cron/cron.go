package cron

import (
	"context"
	"fmt"
	"log"
	"sync"

	cronlib "github.com/robfig/cron/v3"
)

// DefaultSchedule 队列维护频率
const DefaultSchedule = "@every 1s"

// QueueMaintainer 需要定期维护的队列
type QueueMaintainer interface {
	PromoteDue(ctx context.Context) (int, error)
	ReclaimExpired(ctx context.Context) (int, error)
}

// Service 在 worker 进程内定期搬运到期重试、回收过期租约
type Service struct {
	cron   *cronlib.Cron
	queue  QueueMaintainer
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

func NewService(queue QueueMaintainer, schedule string) (*Service, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cron:   cronlib.New(cronlib.WithChain(cronlib.SkipIfStillRunning(cronlib.DefaultLogger))),
		queue:  queue,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(schedule, s.maintain); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start 启动定时任务
func (s *Service) Start() {
	s.cron.Start()
	log.Println("Cron service started (queue maintenance)")
}

// Stop 停止定时任务并等待正在执行的维护结束
func (s *Service) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Println("Cron service stopped")
}

func (s *Service) maintain() {
	if _, _, err := s.RunNow(s.ctx); err != nil && s.ctx.Err() == nil {
		log.Printf("Queue maintenance failed: %v", err)
	}
}

// RunNow 立即执行一次维护（用于测试或手动触发）
func (s *Service) RunNow(ctx context.Context) (promoted, reclaimed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reclaimed, err = s.queue.ReclaimExpired(ctx)
	if err != nil {
		return 0, reclaimed, fmt.Errorf("reclaim expired leases: %w", err)
	}
	promoted, err = s.queue.PromoteDue(ctx)
	if err != nil {
		return promoted, reclaimed, fmt.Errorf("promote delayed messages: %w", err)
	}

	if promoted > 0 || reclaimed > 0 {
		log.Printf("Queue maintenance: promoted=%d, reclaimed=%d", promoted, reclaimed)
	}
	return promoted, reclaimed, nil
}
