package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentry-dev/agentry/internal/domain"
)

// RemoveTaskInput contains the parameters for removing a task.
type RemoveTaskInput struct {
	TaskID int
	Force  bool // discard uncommitted worktree changes
}

// RemoveTaskOutput contains the removed task.
type RemoveTaskOutput struct {
	Task *domain.Task
}

// ForceRemover is implemented by worktree managers that can discard a
// dirty worktree.
type ForceRemover interface {
	ForceRemove(task domain.TaskMeta) error
}

// RemoveTask removes a task entirely: sessions, worktree, branch, task
// file and completion marker.
type RemoveTask struct {
	tasks     domain.TaskStore
	worktrees domain.WorktreeManager
	gateway   domain.DaemonGateway
	project   domain.ProjectKey
}

// NewRemoveTask creates a new RemoveTask use case.
func NewRemoveTask(
	tasks domain.TaskStore,
	worktrees domain.WorktreeManager,
	gateway domain.DaemonGateway,
	project domain.ProjectKey,
) *RemoveTask {
	return &RemoveTask{tasks: tasks, worktrees: worktrees, gateway: gateway, project: project}
}

// Execute tears the task down in dependency order: sessions first so
// nothing holds the worktree, then worktree and branch, then the file.
func (uc *RemoveTask) Execute(_ context.Context, in RemoveTaskInput) (*RemoveTaskOutput, error) {
	task, err := uc.tasks.Get(in.TaskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	meta := task.Meta()

	if _, err := uc.gateway.StopTask(uc.project, meta); err != nil && !errors.Is(err, domain.ErrDaemonNotRunning) {
		return nil, fmt.Errorf("stop sessions: %w", err)
	}

	if in.Force {
		if fr, ok := uc.worktrees.(ForceRemover); ok {
			err = fr.ForceRemove(meta)
		} else {
			err = uc.worktrees.Remove(meta)
		}
	} else {
		err = uc.worktrees.Remove(meta)
	}
	if err != nil && !errors.Is(err, domain.ErrWorktreeNotFound) {
		return nil, fmt.Errorf("remove worktree: %w", err)
	}

	if err := uc.tasks.Delete(meta); err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}

	if err := uc.gateway.NotifyChanged(uc.project); err != nil && !errors.Is(err, domain.ErrDaemonNotRunning) {
		return nil, fmt.Errorf("notify daemon: %w", err)
	}
	return &RemoveTaskOutput{Task: task}, nil
}
