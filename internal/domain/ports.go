package domain

import (
	"context"
	"time"
)

// SessionManager hides the terminal multiplexer behind four operations.
// Implementations run the multiplexer on a socket dedicated to agentry,
// distinct from any ambient server the invoking shell is inside.
type SessionManager interface {
	// Start creates a detached session for a task. The pane is configured
	// to survive process exit and its output is wired to the per-session
	// activity marker.
	Start(ctx context.Context, opts StartSessionOptions) error

	// Attach hands the calling process's terminal over to the named
	// session. On success it does not return.
	Attach(sessionName string) error

	// Kill terminates a session and clears its activity marker.
	// Best-effort: tolerates "already gone".
	Kill(repoRoot, sessionName string) error

	// List returns raw facts about the live sessions belonging to a
	// project, with no interpretation.
	List(repoRoot string) ([]SessionInfo, error)
}

// StartSessionOptions configures session creation.
type StartSessionOptions struct {
	Env      map[string]string // Extra environment for the pane process
	RepoRoot string            // Project root (stamp location, session tagging)
	Dir      string            // Working directory for the pane
	Command  string            // Shell command to run
	Task     TaskMeta          // Task the session is bound to
}

// TaskStore reads and mutates task files and completion markers for one
// project. The daemon uses it read-only; mutations happen in the command
// layer.
type TaskStore interface {
	// List returns all tasks in the project.
	List() ([]*Task, error)

	// Get retrieves a task by ID. Returns ErrTaskNotFound if missing.
	Get(id int) (*Task, error)

	// Create writes a new task file.
	Create(task *Task) error

	// Delete removes a task file and its completion marker.
	Delete(task TaskMeta) error

	// NextID returns the next available task ID.
	NextID() (int, error)

	// IsCompleted reports whether the completion marker is present.
	IsCompleted(task TaskMeta) bool

	// MarkCompleted writes the completion marker (idempotent).
	MarkCompleted(task TaskMeta) error

	// ClearCompleted removes the completion marker if present.
	ClearCompleted(task TaskMeta) error
}

// WorktreeManager manages git worktrees for one project.
type WorktreeManager interface {
	// Ensure creates the branch and worktree for a task if needed and
	// returns the worktree path.
	Ensure(task TaskMeta, baseBranch string) (string, error)

	// Exists checks if the task's worktree exists.
	Exists(task TaskMeta) (bool, error)

	// Remove deletes the task's worktree and branch.
	Remove(task TaskMeta) error
}

// MetricsEngine collects live git metrics for one project.
type MetricsEngine interface {
	// Collect computes uncommitted add/del line counts and the number of
	// commits the task branch is ahead of its base.
	Collect(task TaskMeta, baseBranch string) (TaskMetrics, error)
}

// DaemonGateway is the client-side port to the orchestration daemon.
type DaemonGateway interface {
	// StartSession asks the daemon to create a session for a task.
	StartSession(project ProjectKey, task TaskMeta, command, dir string, env map[string]string) error

	// StopTask terminates all sessions of a task; returns how many.
	StopTask(project ProjectKey, task TaskMeta) (int, error)

	// StopSession terminates the session with the given multiplexer id.
	StopSession(sessionID int64) (int, error)

	// Snapshot fetches a one-shot composite snapshot.
	Snapshot(project ProjectKey) (*Snapshot, error)

	// NotifyChanged requests an immediate recompute and broadcast.
	NotifyChanged(project ProjectKey) error
}

// ConfigLoader loads configuration from files.
type ConfigLoader interface {
	// Load returns the merged configuration (default <- global <- repo).
	Load() (*Config, error)
}

// Clock provides time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}
