package worker

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
)

const (
	defaultConcurrency = 3
	defaultPollTimeout = 5 * time.Second
	defaultJobTimeout  = 5 * time.Minute

	// 队列或限流器出错后的等待时间
	errorPause = time.Second
	// Ack / Nack / Release 在关闭过程中也要能完成
	settleTimeout = 5 * time.Second
)

// Handler 处理一条任务消息
type Handler interface {
	Process(ctx context.Context, msg *queue.JobMessage) error
}

// JobQueue worker 池使用的队列操作
type JobQueue interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.JobMessage, error)
	Ack(ctx context.Context, msg *queue.JobMessage) error
	Nack(ctx context.Context, msg *queue.JobMessage, cause error) (bool, error)
	Release(ctx context.Context, msg *queue.JobMessage) error
}

// StartLimiter 限制任务启动速率，跨进程共享
type StartLimiter interface {
	Wait(ctx context.Context) error
}

// PoolConfig worker 池配置
type PoolConfig struct {
	Concurrency int
	PollTimeout time.Duration
	JobTimeout  time.Duration
}

// Pool 固定大小的 worker 池，每个 worker 同时只处理一个任务
type Pool struct {
	cfg     PoolConfig
	queue   JobQueue
	handler Handler
	limiter StartLimiter
}

// NewPool 创建 worker 池，limiter 为 nil 时不限速
func NewPool(cfg PoolConfig, q JobQueue, handler Handler, limiter StartLimiter) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	return &Pool{
		cfg:     cfg,
		queue:   q,
		handler: handler,
		limiter: limiter,
	}
}

// Run 启动所有 worker，ctx 取消后等待进行中的任务结束再返回
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		workerID := i
		g.Go(func() error {
			p.loop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			log.Printf("Worker %d shutting down", workerID)
			return
		}

		msg, err := p.queue.Pop(ctx, p.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("Worker %d: failed to pop job: %v", workerID, err)
			pause(ctx, errorPause)
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				p.release(workerID, msg)
				if ctx.Err() == nil {
					log.Printf("Worker %d: rate limiter error: %v", workerID, err)
					pause(ctx, errorPause)
				}
				continue
			}
		}

		p.handle(ctx, workerID, msg)
	}
}

// handle 任务在自己的超时内运行完，不随关闭信号中断
func (p *Pool) handle(ctx context.Context, workerID int, msg *queue.JobMessage) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.JobTimeout)
	defer cancel()

	log.Printf("Worker %d: processing job %s", workerID, msg.JobID)
	procErr := p.handler.Process(jobCtx, msg)

	sctx, scancel := context.WithTimeout(context.Background(), settleTimeout)
	defer scancel()

	if procErr == nil {
		if err := p.queue.Ack(sctx, msg); err != nil {
			log.Printf("Worker %d: failed to ack job %s: %v", workerID, msg.JobID, err)
		}
		return
	}

	log.Printf("Worker %d: job %s failed: %v", workerID, msg.JobID, procErr)
	buried, err := p.queue.Nack(sctx, msg, procErr)
	if err != nil {
		log.Printf("Worker %d: failed to nack job %s: %v", workerID, msg.JobID, err)
		return
	}
	if buried {
		log.Printf("Worker %d: job %s moved to dead letter after %d attempts", workerID, msg.JobID, msg.Attempt+1)
	}
}

func (p *Pool) release(workerID int, msg *queue.JobMessage) {
	sctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := p.queue.Release(sctx, msg); err != nil {
		log.Printf("Worker %d: failed to release job %s: %v", workerID, msg.JobID, err)
	}
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
