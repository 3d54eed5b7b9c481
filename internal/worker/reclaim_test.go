package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/chirp_analysis/internal/model"
	"github.com/qs3c/chirp_analysis/internal/pkg/queue"
	"github.com/qs3c/chirp_analysis/internal/repository"
	"github.com/qs3c/chirp_analysis/internal/testutil"
)

func TestReclaimFailer_CrashedJobEndsFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	jobs := repository.NewJobRepository(db)
	q := queue.NewQueue(client, "analysis_reclaim_test", queue.Options{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		VisibilityTimeout: time.Millisecond,
		OnReclaim:         ReclaimFailer(jobs),
	})

	session := testutil.TestSession(t, db, testutil.NewChildID())
	job := testutil.TestJob(t, db, session, model.JobStatusPending)
	require.NoError(t, q.Push(ctx, messageFor(session, job)))

	// 每次都在 RUNNING 时崩溃，由租约过期回收
	for i := 0; i < 3; i++ {
		msg, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, msg, "attempt %d", i+1)
		require.NoError(t, jobs.MarkRunning(ctx, msg.JobID, time.Now()))

		time.Sleep(10 * time.Millisecond)
		n, err := q.ReclaimExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		time.Sleep(10 * time.Millisecond)
		_, err = q.PromoteDue(ctx)
		require.NoError(t, err)
	}

	dead, err := q.DeadLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "lease expired", *got.ErrorMessage)
}

func TestReclaimFailer_DoneJobUntouched(t *testing.T) {
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	ctx := context.Background()
	jobs := repository.NewJobRepository(db)
	session := testutil.TestSession(t, db, testutil.NewChildID())
	job := testutil.TestJob(t, db, session, model.JobStatusDone)

	ReclaimFailer(jobs)(ctx, messageFor(session, job), false)

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}
