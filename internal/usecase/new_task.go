package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentry-dev/agentry/internal/domain"
)

// NewTaskInput contains the parameters for creating a task.
type NewTaskInput struct {
	Title       string
	Description string
	BaseBranch  string // empty means the repo's current branch at start time
	Agent       string // empty means the configured default agent
}

// NewTaskOutput contains the created task.
type NewTaskOutput struct {
	Task *domain.Task
}

// NewTask is the use case for creating a task file.
type NewTask struct {
	tasks   domain.TaskStore
	gateway domain.DaemonGateway
	project domain.ProjectKey
}

// NewNewTask creates a new NewTask use case.
func NewNewTask(tasks domain.TaskStore, gateway domain.DaemonGateway, project domain.ProjectKey) *NewTask {
	return &NewTask{tasks: tasks, gateway: gateway, project: project}
}

// Execute creates the task file and nudges the daemon to re-read state.
func (uc *NewTask) Execute(_ context.Context, in NewTaskInput) (*NewTaskOutput, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("task title must not be empty")
	}

	id, err := uc.tasks.NextID()
	if err != nil {
		return nil, fmt.Errorf("allocate task id: %w", err)
	}
	task := &domain.Task{
		ID:          id,
		Slug:        domain.Slugify(in.Title),
		Title:       in.Title,
		Description: in.Description,
		BaseBranch:  in.BaseBranch,
		Agent:       in.Agent,
	}
	if err := uc.tasks.Create(task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	// A sleeping daemon is fine; the next poll picks the file up anyway.
	if err := uc.gateway.NotifyChanged(uc.project); err != nil && !errors.Is(err, domain.ErrDaemonNotRunning) {
		return nil, fmt.Errorf("notify daemon: %w", err)
	}
	return &NewTaskOutput{Task: task}, nil
}
