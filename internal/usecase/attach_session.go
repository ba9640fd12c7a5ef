package usecase

import (
	"context"
	"fmt"

	"github.com/agentry-dev/agentry/internal/domain"
)

// AttachSessionInput contains the parameters for attaching to a task's
// session.
type AttachSessionInput struct {
	TaskID int
}

// AttachSession is the use case for attaching the terminal to a task's
// running session. On success the process is replaced by the
// multiplexer client and Execute never returns.
type AttachSession struct {
	tasks    domain.TaskStore
	sessions domain.SessionManager
}

// NewAttachSession creates a new AttachSession use case.
func NewAttachSession(tasks domain.TaskStore, sessions domain.SessionManager) *AttachSession {
	return &AttachSession{tasks: tasks, sessions: sessions}
}

// Execute attaches to the task's session.
func (uc *AttachSession) Execute(_ context.Context, in AttachSessionInput) error {
	task, err := uc.tasks.Get(in.TaskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	return uc.sessions.Attach(domain.SessionName(task.Meta()))
}
