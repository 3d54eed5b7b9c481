package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/chirp_analysis/internal/capability"
	"github.com/qs3c/chirp_analysis/internal/model"
	"github.com/qs3c/chirp_analysis/internal/pkg/pubsub"
	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
	"github.com/qs3c/chirp_analysis/internal/repository"
	"github.com/qs3c/chirp_analysis/internal/scoring"
)

// 失败记账使用独立的超时，任务 ctx 超时后仍能写回 FAILED
const bookkeepingTimeout = 10 * time.Second

type JobStore interface {
	GetByID(ctx context.Context, id string) (*model.AnalysisJob, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	MarkDone(ctx context.Context, id string, resultJSON []byte, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string, finishedAt time.Time) error
}

type SessionStore interface {
	GetByID(ctx context.Context, id string) (*model.Session, error)
	AttachAnalysis(ctx context.Context, sessionID, jobID string, resultJSON []byte, overall float64, at time.Time) error
}

type RubricSource interface {
	GetRubric(ctx context.Context, scenarioID string) ([]byte, error)
}

// MediaResolver 把 media_ref 转成分析服务可直接拉取的 URL
type MediaResolver interface {
	ResolveMediaURL(ctx context.Context, mediaRef string) (string, error)
}

type VideoAnalyzer interface {
	AnalyzeVideo(ctx context.Context, videoURL string) *capability.VideoResult
}

type SpeechTranscriber interface {
	Transcribe(ctx context.Context, audioURL string) *capability.SpeechResult
}

type AudioAnalyzer interface {
	AnalyzeAudio(ctx context.Context, audioURL string) *capability.AudioResult
}

type RewardEvaluator interface {
	Evaluate(ctx context.Context, childID string, assessment *scoring.Assessment) ([]*model.CompanionUnlock, error)
}

type ProgressPublisher interface {
	PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error
}

// Deps 处理器依赖，Rewards 与 Progress 可为空
type Deps struct {
	Jobs     JobStore
	Sessions SessionStore
	Rubrics  RubricSource
	Media    MediaResolver
	Video    VideoAnalyzer
	Speech   SpeechTranscriber
	Audio    AudioAnalyzer
	Rewards  RewardEvaluator
	Progress ProgressPublisher
}

// Processor 任务处理器
type Processor struct {
	deps Deps
	now  func() time.Time
}

// NewProcessor 创建任务处理器
func NewProcessor(deps Deps) *Processor {
	return &Processor{
		deps: deps,
		now:  time.Now,
	}
}

// Process 处理分析任务。返回 error 时由队列决定重试或进入死信
func (p *Processor) Process(ctx context.Context, msg *queue.JobMessage) error {
	publishProgress := func(step, status, errMsg string) {
		p.publish(ctx, &pubsub.ProgressMessage{
			Type:      pubsub.TypeJobProgress,
			JobID:     msg.JobID,
			SessionID: msg.SessionID,
			ChildID:   msg.ChildID,
			Status:    status,
			Step:      step,
			Error:     errMsg,
		})
	}

	handleError := func(step string, err error) error {
		errMsg := err.Error()
		log.Printf("Job %s: failed at %s: %v", msg.JobID, step, err)

		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
		defer cancel()
		if markErr := p.deps.Jobs.MarkFailed(bctx, msg.JobID, errMsg, p.now()); markErr != nil {
			log.Printf("Job %s: failed to mark failed: %v", msg.JobID, markErr)
		}
		p.publish(bctx, &pubsub.ProgressMessage{
			Type:      pubsub.TypeJobProgress,
			JobID:     msg.JobID,
			SessionID: msg.SessionID,
			ChildID:   msg.ChildID,
			Status:    model.JobStatusFailed,
			Step:      pubsub.StepFailed,
			Error:     errMsg,
		})
		return err
	}

	// Step 0: 加载任务，重投的 DONE 任务只补写会话镜像
	job, err := p.deps.Jobs.GetByID(ctx, msg.JobID)
	if err != nil {
		return handleError(pubsub.StepStarted, fmt.Errorf("failed to get job: %w", err))
	}
	if job.Status == model.JobStatusDone {
		log.Printf("Job %s: already done, skipping redelivery", job.ID)
		return p.repairSession(ctx, msg, job)
	}

	// Step 1: 标记运行
	if err := p.deps.Jobs.MarkRunning(ctx, job.ID, p.now()); err != nil {
		return handleError(pubsub.StepStarted, fmt.Errorf("failed to mark running: %w", err))
	}
	log.Printf("Job %s: started (attempt %d)", job.ID, msg.Attempt+1)
	publishProgress(pubsub.StepStarted, model.JobStatusRunning, "")

	// Step 2: 加载会话并解析媒体地址
	session, err := p.deps.Sessions.GetByID(ctx, msg.SessionID)
	if err != nil {
		return handleError(pubsub.StepResolving, fmt.Errorf("failed to get session: %w", err))
	}
	mediaRef := msg.MediaRef
	if mediaRef == "" {
		mediaRef = session.MediaRef
	}
	if mediaRef == "" {
		return handleError(pubsub.StepResolving, errors.New("session has no media reference"))
	}
	mediaURL, err := p.deps.Media.ResolveMediaURL(ctx, mediaRef)
	if err != nil {
		return handleError(pubsub.StepResolving, fmt.Errorf("failed to resolve media: %w", err))
	}
	publishProgress(pubsub.StepResolving, model.JobStatusRunning, "")

	// Step 3: 依次调用三个分析服务，失败时内部已回退
	video := p.deps.Video.AnalyzeVideo(ctx, mediaURL)
	publishProgress(pubsub.StepVideo, model.JobStatusRunning, "")

	speech := p.deps.Speech.Transcribe(ctx, mediaURL)
	publishProgress(pubsub.StepSpeech, model.JobStatusRunning, "")

	audio := p.deps.Audio.AnalyzeAudio(ctx, mediaURL)
	publishProgress(pubsub.StepAudio, model.JobStatusRunning, "")

	if video.Fallback || speech.Fallback || audio.Fallback {
		log.Printf("Job %s: degraded result (video=%t speech=%t audio=%t)",
			job.ID, video.Fallback, speech.Fallback, audio.Fallback)
	}

	// Step 4: 评分
	scenarioID := msg.ScenarioID
	if scenarioID == "" && session.ScenarioID != nil {
		scenarioID = *session.ScenarioID
	}
	rubric, err := p.loadRubric(ctx, job.ID, scenarioID)
	if err != nil {
		return handleError(pubsub.StepScoring, err)
	}
	assessment := scoring.Aggregate(video, speech, audio, rubric)
	result, err := assessment.JSON()
	if err != nil {
		return handleError(pubsub.StepScoring, fmt.Errorf("failed to encode assessment: %w", err))
	}
	publishProgress(pubsub.StepScoring, model.JobStatusRunning, "")

	// Step 5: 持久化
	finishedAt := p.now()
	if err := p.deps.Jobs.MarkDone(ctx, job.ID, result, finishedAt); err != nil {
		return handleError(pubsub.StepDone, fmt.Errorf("failed to save result: %w", err))
	}
	if err := p.deps.Sessions.AttachAnalysis(ctx, session.ID, job.ID, result, assessment.OverallScore, finishedAt); err != nil {
		// 任务已是 DONE，重投时由 repairSession 补写
		log.Printf("Job %s: failed to attach analysis to session %s: %v", job.ID, session.ID, err)
		return fmt.Errorf("failed to attach analysis: %w", err)
	}
	log.Printf("Job %s: completed, overall score %.3f", job.ID, assessment.OverallScore)
	publishProgress(pubsub.StepDone, model.JobStatusDone, "")

	// Step 6: 奖励
	p.grantRewards(ctx, msg, job.ChildID, assessment)
	return nil
}

// loadRubric 没有场景、场景不存在或规则无法解析时使用默认评分
func (p *Processor) loadRubric(ctx context.Context, jobID, scenarioID string) (*scoring.Rubric, error) {
	if scenarioID == "" || p.deps.Rubrics == nil {
		return nil, nil
	}

	raw, err := p.deps.Rubrics.GetRubric(ctx, scenarioID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("Job %s: scenario %s not found, using default rubric", jobID, scenarioID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rubric: %w", err)
	}

	rubric, err := scoring.ParseRubric(raw)
	if err != nil {
		log.Printf("Job %s: invalid rubric for scenario %s, using default: %v", jobID, scenarioID, err)
		return nil, nil
	}
	return rubric, nil
}

// repairSession 上次会话镜像写入失败时，从任务结果补写并补发奖励
func (p *Processor) repairSession(ctx context.Context, msg *queue.JobMessage, job *model.AnalysisJob) error {
	session, err := p.deps.Sessions.GetByID(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session.AnalysisRef != nil && *session.AnalysisRef == job.ID {
		return nil
	}
	if !job.HasResult() {
		return fmt.Errorf("job %s is done without a result", job.ID)
	}

	var assessment scoring.Assessment
	if err := json.Unmarshal(job.ResultJSON, &assessment); err != nil {
		return fmt.Errorf("failed to decode stored result: %w", err)
	}

	at := p.now()
	if job.FinishedAt != nil {
		at = *job.FinishedAt
	}
	if err := p.deps.Sessions.AttachAnalysis(ctx, session.ID, job.ID, job.ResultJSON, assessment.OverallScore, at); err != nil {
		return fmt.Errorf("failed to attach analysis: %w", err)
	}
	log.Printf("Job %s: session %s analysis restored", job.ID, session.ID)

	p.publish(ctx, &pubsub.ProgressMessage{
		Type:      pubsub.TypeJobProgress,
		JobID:     job.ID,
		SessionID: session.ID,
		ChildID:   job.ChildID,
		Status:    model.JobStatusDone,
		Step:      pubsub.StepDone,
	})
	p.grantRewards(ctx, msg, job.ChildID, &assessment)
	return nil
}

// grantRewards 奖励发放失败不影响任务结果
func (p *Processor) grantRewards(ctx context.Context, msg *queue.JobMessage, childID string, assessment *scoring.Assessment) {
	if p.deps.Rewards == nil {
		return
	}

	unlocks, err := p.deps.Rewards.Evaluate(ctx, childID, assessment)
	if err != nil {
		log.Printf("Job %s: reward evaluation error: %v", msg.JobID, err)
	}
	if len(unlocks) == 0 {
		return
	}

	types := make([]string, 0, len(unlocks))
	for _, u := range unlocks {
		types = append(types, u.Type)
	}
	p.publish(ctx, &pubsub.ProgressMessage{
		Type:      pubsub.TypeRewardUnlocked,
		JobID:     msg.JobID,
		SessionID: msg.SessionID,
		ChildID:   childID,
		Status:    model.JobStatusDone,
		Step:      pubsub.StepReward,
		Unlocks:   types,
	})
}

func (p *Processor) publish(ctx context.Context, msg *pubsub.ProgressMessage) {
	if p.deps.Progress == nil {
		return
	}
	if err := p.deps.Progress.PublishProgress(ctx, msg); err != nil {
		log.Printf("Job %s: failed to publish %s progress: %v", msg.JobID, msg.Step, err)
	}
}
