package domain

import "errors"

// Domain errors.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskExists        = errors.New("task already exists")
	ErrSessionRunning    = errors.New("session already running")
	ErrNoSession         = errors.New("no running session")
	ErrWorktreeNotFound  = errors.New("worktree not found")
	ErrWorktreeDirty     = errors.New("worktree has uncommitted changes (use --force to discard)")
	ErrNoAgent           = errors.New("no agent configured (set default_agent or an [agents.<name>] section)")
	ErrNotGitRepository  = errors.New("not a git repository (or any of the parent directories)")
	ErrDaemonNotRunning  = errors.New("daemon not running (start it with 'agentry daemon start')")
	ErrDaemonRunning     = errors.New("daemon already running")
	ErrTuiNotFound       = errors.New("no such TUI registration")
	ErrTuiAmbiguous      = errors.New("multiple TUIs registered; pass an explicit tui id")
	ErrFollowStopped     = errors.New("followed TUI went away")
	ErrVersionMismatch   = errors.New("daemon version mismatch")
	ErrProtocol          = errors.New("protocol error")
)
