package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
	"github.com/qs3c/chirp_analysis/internal/repository"
)

// ReclaimFailer 返回队列回收钩子：worker 崩溃导致租约过期时，把任务记为一次失败。
// 每次回收都累加 retry_count，进入死信后任务停留在 FAILED
func ReclaimFailer(jobs JobStore) queue.ReclaimHook {
	return func(ctx context.Context, msg *queue.JobMessage, buried bool) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
		defer cancel()

		err := jobs.MarkFailed(ctx, msg.JobID, "lease expired", time.Now())
		switch {
		case errors.Is(err, repository.ErrInvalidTransition):
			// 任务已完成，重投的消息会在 MarkRunning 处被丢弃
		case err != nil:
			log.Printf("Failed to mark reclaimed job %s as failed: %v", msg.JobID, err)
		case buried:
			log.Printf("Job %s buried after %d attempts, last lease expired", msg.JobID, msg.Attempt+1)
		}
	}
}
