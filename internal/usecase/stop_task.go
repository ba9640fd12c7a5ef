package usecase

import (
	"context"
	"fmt"

	"github.com/agentry-dev/agentry/internal/domain"
)

// StopTaskInput contains the parameters for stopping a task's sessions.
type StopTaskInput struct {
	TaskID int
}

// StopTaskOutput contains the result of stopping a task.
type StopTaskOutput struct {
	Task    *domain.Task
	Stopped int // number of sessions terminated
}

// StopTask is the use case for stopping every session of a task. The
// worktree and branch are left in place.
type StopTask struct {
	tasks   domain.TaskStore
	gateway domain.DaemonGateway
	project domain.ProjectKey
}

// NewStopTask creates a new StopTask use case.
func NewStopTask(tasks domain.TaskStore, gateway domain.DaemonGateway, project domain.ProjectKey) *StopTask {
	return &StopTask{tasks: tasks, gateway: gateway, project: project}
}

// Execute stops the task's sessions via the daemon.
func (uc *StopTask) Execute(_ context.Context, in StopTaskInput) (*StopTaskOutput, error) {
	task, err := uc.tasks.Get(in.TaskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	stopped, err := uc.gateway.StopTask(uc.project, task.Meta())
	if err != nil {
		return nil, fmt.Errorf("stop task: %w", err)
	}
	return &StopTaskOutput{Task: task, Stopped: stopped}, nil
}
