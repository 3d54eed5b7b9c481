package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNoLease 消息已被确认或租约已被回收
var ErrNoLease = errors.New("message is not leased")

// Options 重试与租约参数
type Options struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	VisibilityTimeout time.Duration

	// OnReclaim 过期租约被回收后调用，buried 表示消息已进入死信
	OnReclaim ReclaimHook
}

// ReclaimHook 回收通知，用于把崩溃的任务记为一次失败
type ReclaimHook func(ctx context.Context, msg *JobMessage, buried bool)

// Queue 基于 Redis 列表的可靠队列：
// ready 列表待处理，processing 列表加租约 ZSET 记录处理中，delayed ZSET 等待重试，dead 列表存放耗尽重试的消息。
type Queue struct {
	client     *redis.Client
	queueName  string
	processing string
	leases     string
	delayed    string
	dead       string
	opts       Options
	now        func() time.Time
}

// JobMessage 分析任务消息，JobID 即数据库中的任务 ID
type JobMessage struct {
	JobID      string `json:"job_id"`
	SessionID  string `json:"session_id"`
	ChildID    string `json:"child_id"`
	MediaRef   string `json:"media_ref"`
	ScenarioID string `json:"scenario_id,omitempty"`
	ModuleID   string `json:"module_id,omitempty"`
	Attempt    int    `json:"attempt"` // 已失败的次数
	LastError  string `json:"last_error,omitempty"`

	raw string
}

// Stats 各阶段消息数量
type Stats struct {
	Ready      int64 `json:"ready"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

func NewQueue(client *redis.Client, queueName string, opts Options) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 2 * time.Second
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 10 * time.Minute
	}
	return &Queue{
		client:     client,
		queueName:  queueName,
		processing: queueName + ":processing",
		leases:     queueName + ":leases",
		delayed:    queueName + ":delayed",
		dead:       queueName + ":dead",
		opts:       opts,
		now:        time.Now,
	}
}

// Backoff 第 attempt 次失败后的等待时间：InitialBackoff * 2^(attempt-1)
func (q *Queue) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.opts.InitialBackoff * time.Duration(1<<uint(attempt-1))
}

// Push 将任务加入队列
func (q *Queue) Push(ctx context.Context, msg *JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取任务（阻塞），超时无任务时返回 nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*JobMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := q.client.BRPopLPush(ctx, q.queueName, q.processing, timeout).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无任务
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	var msg JobMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// 无法解析的消息直接进入死信
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processing, 1, raw)
		pipe.LPush(ctx, q.dead, raw)
		if _, perr := pipe.Exec(ctx); perr != nil {
			return nil, fmt.Errorf("failed to bury malformed message: %w", perr)
		}
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	msg.raw = raw

	deadline := q.now().Add(q.opts.VisibilityTimeout)
	if err := q.client.ZAdd(ctx, q.leases, &redis.Z{Score: score(deadline), Member: raw}).Err(); err != nil {
		return nil, fmt.Errorf("failed to lease message: %w", err)
	}

	return &msg, nil
}

// 以下脚本只在 processing 中确实移除了消息时才写入新位置，保证消息不丢也不重复
var (
	// KEYS: processing, leases, delayed, dead  ARGV: 原消息, 新消息, 是否进入死信, 重试时间
	retryScript = redis.NewScript(`
local removed = redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
if removed == 0 then
	return 0
end
if ARGV[3] == '1' then
	redis.call('LPUSH', KEYS[4], ARGV[2])
else
	redis.call('ZADD', KEYS[3], ARGV[4], ARGV[2])
end
return 1
`)

	// KEYS: processing, leases, ready  ARGV: 消息
	releaseScript = redis.NewScript(`
local removed = redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
if removed == 0 then
	return 0
end
redis.call('RPUSH', KEYS[3], ARGV[1])
return 1
`)

	// KEYS: delayed, ready  ARGV: 消息
	promoteScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)
)

// Ack 处理成功，移除消息
func (q *Queue) Ack(ctx context.Context, msg *JobMessage) error {
	pipe := q.client.TxPipeline()
	removed := pipe.LRem(ctx, q.processing, 1, msg.raw)
	pipe.ZRem(ctx, q.leases, msg.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	if removed.Val() == 0 {
		return ErrNoLease
	}
	return nil
}

// Nack 处理失败，按退避策略重试或进入死信。返回 true 表示已进入死信
func (q *Queue) Nack(ctx context.Context, msg *JobMessage, cause error) (bool, error) {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	buried, moved, err := q.retryOrBury(ctx, msg, reason)
	if err != nil {
		return false, err
	}
	if !moved {
		return false, ErrNoLease
	}
	return buried, nil
}

// Release 放回队首，不计入失败次数（用于关闭时归还尚未开始的任务）
func (q *Queue) Release(ctx context.Context, msg *JobMessage) error {
	moved, err := releaseScript.Run(ctx, q.client,
		[]string{q.processing, q.leases, q.queueName}, msg.raw).Int()
	if err != nil {
		return fmt.Errorf("failed to release message: %w", err)
	}
	if moved == 0 {
		return ErrNoLease
	}
	return nil
}

// retryOrBury 把处理中的消息移入 delayed 或 dead，moved 为 false 表示消息已不在 processing 中
func (q *Queue) retryOrBury(ctx context.Context, msg *JobMessage, cause string) (buried, moved bool, err error) {
	next := *msg
	next.Attempt++
	next.LastError = cause

	data, err := json.Marshal(&next)
	if err != nil {
		return false, false, fmt.Errorf("failed to marshal message: %w", err)
	}

	buried = next.Attempt >= q.opts.MaxAttempts
	flag := "0"
	if buried {
		flag = "1"
	}
	due := q.now().Add(q.Backoff(next.Attempt))

	n, err := retryScript.Run(ctx, q.client,
		[]string{q.processing, q.leases, q.delayed, q.dead},
		msg.raw, string(data), flag, strconv.FormatInt(due.UnixMilli(), 10)).Int()
	if err != nil {
		return false, false, fmt.Errorf("failed to schedule retry: %w", err)
	}
	return buried, n == 1, nil
}

// PromoteDue 将到期的重试消息移回待处理列表
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	members, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed messages: %w", err)
	}

	promoted := 0
	for _, raw := range members {
		// 多个进程同时搬运时只有 ZREM 成功的一方写入
		n, err := promoteScript.Run(ctx, q.client, []string{q.delayed, q.queueName}, raw).Int()
		if err != nil {
			return promoted, fmt.Errorf("failed to promote message: %w", err)
		}
		promoted += n
	}
	return promoted, nil
}

// ReclaimExpired 回收租约过期的消息（worker 崩溃），按一次失败处理，并通知 OnReclaim
func (q *Queue) ReclaimExpired(ctx context.Context) (int, error) {
	members, err := q.client.ZRangeByScore(ctx, q.leases, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read leases: %w", err)
	}

	reclaimed := 0
	for _, raw := range members {
		var msg JobMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return reclaimed, fmt.Errorf("failed to unmarshal leased message: %w", err)
		}
		msg.raw = raw

		buried, moved, err := q.retryOrBury(ctx, &msg, "lease expired")
		if err != nil {
			return reclaimed, err
		}
		if !moved {
			// 已被确认，脚本已清理残留租约
			continue
		}
		reclaimed++
		if q.opts.OnReclaim != nil {
			q.opts.OnReclaim(ctx, &msg, buried)
		}
	}
	return reclaimed, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

// DeadLength 死信数量
func (q *Queue) DeadLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.dead).Result()
}

// Stats 获取各阶段消息数量
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.queueName)
	processing := pipe.LLen(ctx, q.processing)
	delayed := pipe.ZCard(ctx, q.delayed)
	dead := pipe.LLen(ctx, q.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return &Stats{
		Ready:      ready.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
