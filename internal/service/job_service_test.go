package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/chirp_analysis/internal/model"
	"github.com/qs3c/chirp_analysis/internal/model/dto"
	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
	"github.com/qs3c/chirp_analysis/internal/repository"
	"github.com/qs3c/chirp_analysis/internal/testutil"
)

type failingPusher struct{}

func (failingPusher) Push(ctx context.Context, msg *queue.JobMessage) error {
	return errors.New("redis unavailable")
}

func setupJobService(t *testing.T) (*JobService, *gorm.DB, *queue.Queue) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := queue.NewQueue(client, "analysis_service_test", queue.Options{})

	service := NewJobService(
		repository.NewJobRepository(db),
		repository.NewSessionRepository(db),
		repository.NewUnlockRepository(db),
		q,
	)
	return service, db, q
}

func TestJobService_Enqueue_NewSession(t *testing.T) {
	service, db, q := setupJobService(t)
	ctx := context.Background()
	childID := testutil.NewChildID()

	resp, err := service.Enqueue(ctx, &dto.EnqueueJobRequest{
		SessionID:  "session-1",
		ChildID:    childID,
		MediaRef:   "media/session-1.webm",
		ScenarioID: "scenario-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "session-1", resp.SessionID)
	assert.Equal(t, model.JobStatusPending, resp.Status)

	session, err := repository.NewSessionRepository(db).GetByID(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, childID, session.ChildID)
	require.NotNil(t, session.ScenarioID)
	assert.Equal(t, "scenario-1", *session.ScenarioID)
	assert.Nil(t, session.ModuleID)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	msg, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, resp.JobID, msg.JobID)
	assert.Equal(t, childID, msg.ChildID)
	assert.Equal(t, "media/session-1.webm", msg.MediaRef)
	assert.Equal(t, "scenario-1", msg.ScenarioID)
	assert.Equal(t, 0, msg.Attempt)
}

func TestJobService_Enqueue_ExistingSession(t *testing.T) {
	service, db, _ := setupJobService(t)
	ctx := context.Background()

	session := testutil.TestSession(t, db, testutil.NewChildID())
	resp, err := service.Enqueue(ctx, &dto.EnqueueJobRequest{
		SessionID: session.ID,
		ChildID:   session.ChildID,
		MediaRef:  session.MediaRef,
	})
	require.NoError(t, err)

	job, err := repository.NewJobRepository(db).GetByID(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, job.SessionID)
	assert.Equal(t, model.JobStatusPending, job.Status)
}

func TestJobService_Enqueue_Rejections(t *testing.T) {
	service, db, _ := setupJobService(t)
	ctx := context.Background()

	session := testutil.TestSession(t, db, testutil.NewChildID())
	_, err := service.Enqueue(ctx, &dto.EnqueueJobRequest{
		SessionID: session.ID,
		ChildID:   testutil.NewChildID(),
		MediaRef:  session.MediaRef,
	})
	assert.ErrorIs(t, err, ErrSessionMismatch)

	done := testutil.TestSession(t, db, testutil.NewChildID(), testutil.WithCompleted(0.8))
	_, err = service.Enqueue(ctx, &dto.EnqueueJobRequest{
		SessionID: done.ID,
		ChildID:   done.ChildID,
		MediaRef:  done.MediaRef,
	})
	assert.ErrorIs(t, err, ErrSessionAnalyzed)
}

func TestJobService_Enqueue_InFlight(t *testing.T) {
	service, db, q := setupJobService(t)
	ctx := context.Background()

	req := &dto.EnqueueJobRequest{
		SessionID: "session-dup",
		ChildID:   testutil.NewChildID(),
		MediaRef:  "media/session-dup.webm",
	}
	first, err := service.Enqueue(ctx, req)
	require.NoError(t, err)

	_, err = service.Enqueue(ctx, req)
	assert.ErrorIs(t, err, ErrJobInFlight)

	jobRepo := repository.NewJobRepository(db)
	pending, err := jobRepo.ListByStatus(ctx, model.JobStatusPending, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.JobID, pending[0].ID)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	// RUNNING 同样视为进行中；失败后允许重新提交
	require.NoError(t, jobRepo.MarkRunning(ctx, first.JobID, time.Now()))
	_, err = service.Enqueue(ctx, req)
	assert.ErrorIs(t, err, ErrJobInFlight)

	require.NoError(t, jobRepo.MarkFailed(ctx, first.JobID, "capability outage", time.Now()))
	second, err := service.Enqueue(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.JobID, second.JobID)
}

func TestJobService_Enqueue_PushFailureLeavesPending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	jobRepo := repository.NewJobRepository(db)
	service := NewJobService(jobRepo, repository.NewSessionRepository(db), repository.NewUnlockRepository(db), failingPusher{})

	_, err := service.Enqueue(context.Background(), &dto.EnqueueJobRequest{
		SessionID: "session-x",
		ChildID:   testutil.NewChildID(),
		MediaRef:  "media/x.webm",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnqueueUnavailable)

	pending, err := jobRepo.ListByStatus(context.Background(), model.JobStatusPending, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestJobService_GetJob(t *testing.T) {
	service, db, _ := setupJobService(t)
	ctx := context.Background()

	session := testutil.TestSession(t, db, testutil.NewChildID())
	job := testutil.TestJob(t, db, session, model.JobStatusRunning)
	jobRepo := repository.NewJobRepository(db)
	require.NoError(t, jobRepo.MarkDone(ctx, job.ID, []byte(`{"overall_score":0.7}`), time.Now()))

	detail, err := service.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, detail.Status)
	assert.JSONEq(t, `{"overall_score":0.7}`, string(detail.Result))
	assert.NotEmpty(t, detail.FinishedAt)
	assert.Empty(t, detail.ErrorMessage)

	_, err = service.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobService_GetJob_Failed(t *testing.T) {
	service, db, _ := setupJobService(t)
	ctx := context.Background()

	session := testutil.TestSession(t, db, testutil.NewChildID())
	job := testutil.TestJob(t, db, session, model.JobStatusRunning)
	require.NoError(t, repository.NewJobRepository(db).MarkFailed(ctx, job.ID, "session not found", time.Now()))

	detail, err := service.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, detail.Status)
	assert.Equal(t, "session not found", detail.ErrorMessage)
	assert.Equal(t, 1, detail.RetryCount)
	assert.Nil(t, detail.Result)
}

func TestJobService_GetSessionAnalysis(t *testing.T) {
	service, db, _ := setupJobService(t)
	ctx := context.Background()

	done := testutil.TestSession(t, db, testutil.NewChildID(), testutil.WithCompleted(0.65))
	analysis, err := service.GetSessionAnalysis(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, *done.AnalysisRef, analysis.JobID)
	assert.Equal(t, 0.65, analysis.OverallScore)
	assert.JSONEq(t, `{"overall_score":0.65}`, string(analysis.Result))
	assert.NotEmpty(t, analysis.CompletedAt)

	pending := testutil.TestSession(t, db, testutil.NewChildID())
	_, err = service.GetSessionAnalysis(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrAnalysisNotReady)

	_, err = service.GetSessionAnalysis(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJobService_ListUnlocks(t *testing.T) {
	service, db, _ := setupJobService(t)
	ctx := context.Background()
	childID := testutil.NewChildID()

	testutil.TestUnlock(t, db, childID, "starter_nest")
	testutil.TestUnlock(t, db, childID, "bright_eyes_badge")
	testutil.TestUnlock(t, db, testutil.NewChildID(), "golden_wings")

	items, err := service.ListUnlocks(ctx, childID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	types := []string{items[0].Type, items[1].Type}
	assert.ElementsMatch(t, []string{"starter_nest", "bright_eyes_badge"}, types)
	assert.JSONEq(t, `{}`, string(items[0].Meta))

	empty, err := service.ListUnlocks(ctx, testutil.NewChildID())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJobService_Requeue(t *testing.T) {
	service, db, q := setupJobService(t)
	ctx := context.Background()
	old := time.Now().Add(-2 * time.Hour)

	session := testutil.TestSession(t, db, testutil.NewChildID(), testutil.WithScenario("scenario-9"))
	stalePending := testutil.TestJob(t, db, session, model.JobStatusPending)
	retryable := testutil.TestJob(t, db, session, model.JobStatusFailed)
	exhausted := testutil.TestJob(t, db, session, model.JobStatusFailed)
	freshPending := testutil.TestJob(t, db, session, model.JobStatusPending)

	require.NoError(t, db.Model(&model.AnalysisJob{}).
		Where("id IN ?", []string{stalePending.ID, retryable.ID, exhausted.ID}).
		Updates(map[string]interface{}{"created_at": old, "finished_at": old}).Error)
	require.NoError(t, db.Model(&model.AnalysisJob{}).Where("id = ?", retryable.ID).Update("retry_count", 1).Error)
	require.NoError(t, db.Model(&model.AnalysisJob{}).Where("id = ?", exhausted.ID).Update("retry_count", 3).Error)

	opts := RequeueOptions{OlderThan: time.Hour, MaxAttempts: 3, DryRun: true}
	count, err := service.Requeue(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	opts.DryRun = false
	count, err = service.Requeue(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	pushed := map[string]*queue.JobMessage{}
	for i := 0; i < 2; i++ {
		msg, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, msg)
		pushed[msg.JobID] = msg
	}
	require.Contains(t, pushed, stalePending.ID)
	require.Contains(t, pushed, retryable.ID)
	assert.NotContains(t, pushed, freshPending.ID)
	assert.Equal(t, 1, pushed[retryable.ID].Attempt)
	assert.Equal(t, "scenario-9", pushed[stalePending.ID].ScenarioID)
	assert.Equal(t, session.MediaRef, pushed[stalePending.ID].MediaRef)
}
