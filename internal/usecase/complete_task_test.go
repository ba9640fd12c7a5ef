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

func TestCompleteTask(t *testing.T) {
	store := testutil.NewMockTaskStore()
	store.Tasks[1] = &domain.Task{ID: 1, Slug: "done", Title: "done"}
	gateway := &testutil.MockDaemonGateway{Stopped: 1}
	uc := usecase.NewCompleteTask(store, gateway, testProject)

	out, err := uc.Execute(context.Background(), usecase.CompleteTaskInput{TaskID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Stopped)
	assert.True(t, store.Completed[1])
	assert.Equal(t, []domain.TaskMeta{{ID: 1, Slug: "done"}}, gateway.StopCalls)
	assert.Equal(t, 1, gateway.NotifyCalls)
}

func TestCompleteTask_DaemonDown(t *testing.T) {
	store := testutil.NewMockTaskStore()
	store.Tasks[1] = &domain.Task{ID: 1, Slug: "done", Title: "done"}
	gateway := &testutil.MockDaemonGateway{
		StopErr:   domain.ErrDaemonNotRunning,
		NotifyErr: domain.ErrDaemonNotRunning,
	}
	uc := usecase.NewCompleteTask(store, gateway, testProject)

	// The marker is durable; a sleeping daemon must not block completion.
	out, err := uc.Execute(context.Background(), usecase.CompleteTaskInput{TaskID: 1})
	require.NoError(t, err)
	assert.Zero(t, out.Stopped)
	assert.True(t, store.Completed[1])
}

func TestCompleteTask_UnknownTask(t *testing.T) {
	uc := usecase.NewCompleteTask(testutil.NewMockTaskStore(), &testutil.MockDaemonGateway{}, testProject)

	_, err := uc.Execute(context.Background(), usecase.CompleteTaskInput{TaskID: 5})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestStopTask(t *testing.T) {
	store := testutil.NewMockTaskStore()
	store.Tasks[2] = &domain.Task{ID: 2, Slug: "busy", Title: "busy"}
	gateway := &testutil.MockDaemonGateway{Stopped: 2}
	uc := usecase.NewStopTask(store, gateway, testProject)

	out, err := uc.Execute(context.Background(), usecase.StopTaskInput{TaskID: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Stopped)
	assert.Equal(t, []domain.TaskMeta{{ID: 2, Slug: "busy"}}, gateway.StopCalls)
}

func TestStopTask_UnknownTask(t *testing.T) {
	uc := usecase.NewStopTask(testutil.NewMockTaskStore(), &testutil.MockDaemonGateway{}, testProject)

	_, err := uc.Execute(context.Background(), usecase.StopTaskInput{TaskID: 5})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}
