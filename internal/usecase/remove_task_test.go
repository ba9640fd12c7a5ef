package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/testutil"
	"github.com/agentry-dev/agentry/internal/usecase"
)

func newRemoveFixture() (*testutil.MockTaskStore, *testutil.MockWorktreeManager, *testutil.MockDaemonGateway, *usecase.RemoveTask) {
	store := testutil.NewMockTaskStore()
	worktrees := testutil.NewMockWorktreeManager()
	gateway := &testutil.MockDaemonGateway{}
	uc := usecase.NewRemoveTask(store, worktrees, gateway, testProject)
	return store, worktrees, gateway, uc
}

func TestRemoveTask(t *testing.T) {
	store, worktrees, gateway, uc := newRemoveFixture()
	store.Tasks[1] = &domain.Task{ID: 1, Slug: "gone", Title: "gone"}
	worktrees.Existing[1] = true

	out, err := uc.Execute(context.Background(), usecase.RemoveTaskInput{TaskID: 1})
	require.NoError(t, err)
	assert.Equal(t, "gone", out.Task.Slug)

	// Sessions stopped, worktree removed, file deleted, daemon nudged.
	assert.Len(t, gateway.StopCalls, 1)
	assert.Len(t, worktrees.RemoveCalls, 1)
	assert.Empty(t, worktrees.ForceCalls)
	assert.Empty(t, store.Tasks)
	assert.Equal(t, 1, gateway.NotifyCalls)
}

func TestRemoveTask_Force(t *testing.T) {
	store, worktrees, _, uc := newRemoveFixture()
	store.Tasks[1] = &domain.Task{ID: 1, Slug: "dirty", Title: "dirty"}
	worktrees.Existing[1] = true

	_, err := uc.Execute(context.Background(), usecase.RemoveTaskInput{TaskID: 1, Force: true})
	require.NoError(t, err)
	assert.Len(t, worktrees.ForceCalls, 1)
	assert.Empty(t, worktrees.RemoveCalls)
}

func TestRemoveTask_DirtyWorktreeWithoutForce(t *testing.T) {
	store, worktrees, _, uc := newRemoveFixture()
	store.Tasks[1] = &domain.Task{ID: 1, Slug: "dirty", Title: "dirty"}
	worktrees.RemoveErr = domain.ErrWorktreeDirty

	_, err := uc.Execute(context.Background(), usecase.RemoveTaskInput{TaskID: 1})
	assert.ErrorIs(t, err, domain.ErrWorktreeDirty)
	// Nothing was deleted; the task file survives a refused removal.
	assert.NotEmpty(t, store.Tasks)
}

func TestRemoveTask_MissingWorktreeIsFine(t *testing.T) {
	store, worktrees, _, uc := newRemoveFixture()
	store.Tasks[1] = &domain.Task{ID: 1, Slug: "draft", Title: "draft"}
	worktrees.RemoveErr = domain.ErrWorktreeNotFound

	_, err := uc.Execute(context.Background(), usecase.RemoveTaskInput{TaskID: 1})
	require.NoError(t, err)
	assert.Empty(t, store.Tasks)
}

func TestRemoveTask_DaemonDown(t *testing.T) {
	store, _, gateway, uc := newRemoveFixture()
	store.Tasks[1] = &domain.Task{ID: 1, Slug: "a", Title: "a"}
	gateway.StopErr = domain.ErrDaemonNotRunning
	gateway.NotifyErr = domain.ErrDaemonNotRunning

	_, err := uc.Execute(context.Background(), usecase.RemoveTaskInput{TaskID: 1})
	assert.NoError(t, err)
}
