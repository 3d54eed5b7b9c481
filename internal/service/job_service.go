package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/qs3c/chirp_analysis/internal/model"
	"github.com/qs3c/chirp_analysis/internal/model/dto"
	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
	"github.com/qs3c/chirp_analysis/internal/repository"
)

var (
	ErrJobNotFound        = errors.New("分析任务不存在")
	ErrSessionNotFound    = errors.New("练习记录不存在")
	ErrSessionMismatch    = errors.New("练习记录不属于该孩子")
	ErrSessionAnalyzed    = errors.New("练习记录已完成分析")
	ErrJobInFlight        = errors.New("练习记录已有进行中的分析任务")
	ErrAnalysisNotReady   = errors.New("分析尚未完成")
	ErrEnqueueUnavailable = errors.New("任务队列不可用")
)

// JobPusher 把任务消息写入队列
type JobPusher interface {
	Push(ctx context.Context, msg *queue.JobMessage) error
}

type JobService struct {
	jobRepo     *repository.JobRepository
	sessionRepo *repository.SessionRepository
	unlockRepo  *repository.UnlockRepository
	queue       JobPusher
	now         func() time.Time
}

func NewJobService(
	jobRepo *repository.JobRepository,
	sessionRepo *repository.SessionRepository,
	unlockRepo *repository.UnlockRepository,
	queue JobPusher,
) *JobService {
	return &JobService{
		jobRepo:     jobRepo,
		sessionRepo: sessionRepo,
		unlockRepo:  unlockRepo,
		queue:       queue,
		now:         time.Now,
	}
}

// Enqueue 创建 PENDING 任务并推入队列
func (s *JobService) Enqueue(ctx context.Context, req *dto.EnqueueJobRequest) (*dto.EnqueueJobResponse, error) {
	if s.queue == nil {
		return nil, ErrEnqueueUnavailable
	}

	session, err := s.sessionRepo.GetByID(ctx, req.SessionID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		session = &model.Session{
			ID:         req.SessionID,
			ChildID:    req.ChildID,
			MediaRef:   req.MediaRef,
			ScenarioID: optionalString(req.ScenarioID),
			ModuleID:   optionalString(req.ModuleID),
		}
		if err := s.sessionRepo.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		if session.ChildID != req.ChildID {
			return nil, ErrSessionMismatch
		}
		if session.AnalysisRef != nil {
			return nil, ErrSessionAnalyzed
		}
	}

	// 同一练习最多一个 PENDING / RUNNING 任务
	if inflight, err := s.jobRepo.FindInFlight(ctx, session.ID); err == nil {
		log.Printf("Job %s: session %s already has a %s job", inflight.ID, session.ID, inflight.Status)
		return nil, ErrJobInFlight
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	job := &model.AnalysisJob{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		ChildID:   session.ChildID,
		Status:    model.JobStatusPending,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.queue.Push(ctx, messageFor(job, session, req.MediaRef)); err != nil {
		// 行保持 PENDING，由 requeue 补推
		log.Printf("Job %s: failed to push to queue: %v", job.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrEnqueueUnavailable, err)
	}

	log.Printf("Job %s: enqueued for session %s", job.ID, session.ID)
	return &dto.EnqueueJobResponse{
		JobID:     job.ID,
		SessionID: session.ID,
		Status:    job.Status,
	}, nil
}

// GetJob 获取任务详情
func (s *JobService) GetJob(ctx context.Context, jobID string) (*dto.JobDetail, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return buildJobDetail(job), nil
}

// GetSessionAnalysis 获取练习记录上的分析结果
func (s *JobService) GetSessionAnalysis(ctx context.Context, sessionID string) (*dto.SessionAnalysis, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.AnalysisRef == nil || !model.HasJSON(session.ResultJSON) {
		return nil, ErrAnalysisNotReady
	}

	resp := &dto.SessionAnalysis{
		SessionID: session.ID,
		ChildID:   session.ChildID,
		JobID:     *session.AnalysisRef,
		Result:    []byte(session.ResultJSON),
	}
	if session.OverallScore != nil {
		resp.OverallScore = *session.OverallScore
	}
	if session.CompletedAt != nil {
		resp.CompletedAt = session.CompletedAt.Format(time.RFC3339)
	}
	return resp, nil
}

// ListUnlocks 获取孩子的奖励解锁，最近的在前
func (s *JobService) ListUnlocks(ctx context.Context, childID string) ([]*dto.UnlockItem, error) {
	unlocks, err := s.unlockRepo.ListByChild(ctx, childID)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.UnlockItem, len(unlocks))
	for i, u := range unlocks {
		items[i] = &dto.UnlockItem{
			Type:     u.Type,
			EarnedAt: u.EarnedAt.Format(time.RFC3339),
		}
		if model.HasJSON(u.Meta) {
			items[i].Meta = []byte(u.Meta)
		}
	}
	return items, nil
}

// RequeueOptions 补推条件
type RequeueOptions struct {
	OlderThan   time.Duration // 只处理创建时间早于该时长的任务
	MaxAttempts int           // FAILED 任务重试次数未达上限才补推
	Limit       int
	DryRun      bool
}

// Requeue 补推长时间停留在 PENDING 的任务（推送失败）以及仍有重试次数的 FAILED 任务
func (s *JobService) Requeue(ctx context.Context, opts RequeueOptions) (int, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	cutoff := s.now().Add(-opts.OlderThan)

	pending, err := s.jobRepo.ListByStatus(ctx, model.JobStatusPending, cutoff, opts.Limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	failed, err := s.jobRepo.ListByStatus(ctx, model.JobStatusFailed, cutoff, opts.Limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	candidates := pending
	for _, job := range failed {
		if job.RetryCount >= opts.MaxAttempts {
			continue
		}
		// 最近失败的任务可能还在队列的退避集合里
		if job.FinishedAt != nil && job.FinishedAt.After(cutoff) {
			continue
		}
		candidates = append(candidates, job)
	}

	count := 0
	for _, job := range candidates {
		session, err := s.sessionRepo.GetByID(ctx, job.SessionID)
		if err != nil {
			log.Printf("Requeue: job %s skipped, session %s: %v", job.ID, job.SessionID, err)
			continue
		}

		if opts.DryRun {
			log.Printf("Requeue: [DRY RUN] would push job %s (%s, retries %d)", job.ID, job.Status, job.RetryCount)
			count++
			continue
		}

		msg := messageFor(job, session, "")
		msg.Attempt = job.RetryCount
		if err := s.queue.Push(ctx, msg); err != nil {
			return count, fmt.Errorf("failed to push job %s: %w", job.ID, err)
		}
		log.Printf("Requeue: pushed job %s (%s, retries %d)", job.ID, job.Status, job.RetryCount)
		count++
	}
	return count, nil
}

func messageFor(job *model.AnalysisJob, session *model.Session, mediaRef string) *queue.JobMessage {
	if mediaRef == "" {
		mediaRef = session.MediaRef
	}
	msg := &queue.JobMessage{
		JobID:     job.ID,
		SessionID: session.ID,
		ChildID:   session.ChildID,
		MediaRef:  mediaRef,
	}
	if session.ScenarioID != nil {
		msg.ScenarioID = *session.ScenarioID
	}
	if session.ModuleID != nil {
		msg.ModuleID = *session.ModuleID
	}
	return msg
}

func buildJobDetail(job *model.AnalysisJob) *dto.JobDetail {
	detail := &dto.JobDetail{
		ID:         job.ID,
		SessionID:  job.SessionID,
		ChildID:    job.ChildID,
		Status:     job.Status,
		RetryCount: job.RetryCount,
		CreatedAt:  job.CreatedAt.Format(time.RFC3339),
	}
	if job.ErrorMessage != nil {
		detail.ErrorMessage = *job.ErrorMessage
	}
	if job.HasResult() {
		detail.Result = []byte(job.ResultJSON)
	}
	if job.StartedAt != nil {
		detail.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		detail.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return detail
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
