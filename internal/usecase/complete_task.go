package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentry-dev/agentry/internal/domain"
)

// CompleteTaskInput contains the parameters for marking a task done.
type CompleteTaskInput struct {
	TaskID int
}

// CompleteTaskOutput contains the completed task.
type CompleteTaskOutput struct {
	Task    *domain.Task
	Stopped int // sessions terminated alongside completion
}

// CompleteTask marks a task completed and stops its sessions.
// Completion is a durable marker: it survives daemon restarts and
// dominates every other status signal.
type CompleteTask struct {
	tasks   domain.TaskStore
	gateway domain.DaemonGateway
	project domain.ProjectKey
}

// NewCompleteTask creates a new CompleteTask use case.
func NewCompleteTask(tasks domain.TaskStore, gateway domain.DaemonGateway, project domain.ProjectKey) *CompleteTask {
	return &CompleteTask{tasks: tasks, gateway: gateway, project: project}
}

// Execute writes the completion marker, stops any running sessions and
// broadcasts the change.
func (uc *CompleteTask) Execute(_ context.Context, in CompleteTaskInput) (*CompleteTaskOutput, error) {
	task, err := uc.tasks.Get(in.TaskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	meta := task.Meta()

	if err := uc.tasks.MarkCompleted(meta); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}

	stopped := 0
	if n, err := uc.gateway.StopTask(uc.project, meta); err == nil {
		stopped = n
	} else if !errors.Is(err, domain.ErrDaemonNotRunning) {
		return nil, fmt.Errorf("stop sessions: %w", err)
	}

	if err := uc.gateway.NotifyChanged(uc.project); err != nil && !errors.Is(err, domain.ErrDaemonNotRunning) {
		return nil, fmt.Errorf("notify daemon: %w", err)
	}
	return &CompleteTaskOutput{Task: task, Stopped: stopped}, nil
}
