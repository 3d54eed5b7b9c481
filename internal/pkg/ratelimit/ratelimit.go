package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Limiter Redis 固定窗口计数器，多个 worker 进程共享同一个窗口
type Limiter struct {
	client *redis.Client
	key    string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewLimiter(client *redis.Client, key string, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		key:    key,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

// Allow 占用当前窗口的一个名额。名额用尽时返回到下个窗口的等待时间
func (l *Limiter) Allow(ctx context.Context) (bool, time.Duration, error) {
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	key := fmt.Sprintf("%s:%d", l.key, slot)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to count rate window: %w", err)
	}

	if incr.Val() <= l.limit {
		return true, 0, nil
	}

	next := time.Unix(0, (slot+1)*int64(l.window))
	return false, next.Sub(now), nil
}

// Wait 阻塞直到获得名额或 ctx 结束
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, wait, err := l.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
