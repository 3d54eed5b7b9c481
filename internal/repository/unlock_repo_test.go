package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/qs3c/chirp_analysis/internal/model"
	"github.com/qs3c/chirp_analysis/internal/testutil"
)

func TestUnlockRepository_ListTypes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUnlockRepository(db)
	childID := testutil.NewChildID()

	testutil.TestUnlock(t, db, childID, "starter_nest")
	testutil.TestUnlock(t, db, childID, "bright_eyes_badge")
	testutil.TestUnlock(t, db, testutil.NewChildID(), "golden_wings")

	types, err := repo.ListTypes(context.Background(), childID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"starter_nest", "bright_eyes_badge"}, types)
}

func TestUnlockRepository_CreateIfAbsent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewUnlockRepository(db)
	childID := testutil.NewChildID()

	newUnlock := func() *model.CompanionUnlock {
		return &model.CompanionUnlock{
			ChildID:  childID,
			Type:     "starter_nest",
			Meta:     datatypes.JSON(`{"title":"Starter Nest"}`),
			EarnedAt: time.Now(),
		}
	}

	created, err := repo.CreateIfAbsent(ctx, newUnlock())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateIfAbsent(ctx, newUnlock())
	require.NoError(t, err)
	assert.False(t, created)

	unlocks, err := repo.ListByChild(ctx, childID)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.JSONEq(t, `{"title":"Starter Nest"}`, string(unlocks[0].Meta))
}

func TestUnlockRepository_ListByChild_Order(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewUnlockRepository(db)
	childID := testutil.NewChildID()

	old := &model.CompanionUnlock{ChildID: childID, Type: "old", EarnedAt: time.Now().Add(-time.Hour)}
	recent := &model.CompanionUnlock{ChildID: childID, Type: "recent", EarnedAt: time.Now()}
	_, err := repo.CreateIfAbsent(ctx, old)
	require.NoError(t, err)
	_, err = repo.CreateIfAbsent(ctx, recent)
	require.NoError(t, err)

	unlocks, err := repo.ListByChild(ctx, childID)
	require.NoError(t, err)
	require.Len(t, unlocks, 2)
	assert.Equal(t, "recent", unlocks[0].Type)
	assert.Equal(t, "old", unlocks[1].Type)
}
