package domain

import "time"

// Status represents the derived lifecycle state of a task.
// It is recomputed from observed facts on every poll and never persisted.
type Status string

const (
	StatusDraft     Status = "draft"     // No session, no worktree
	StatusStopped   Status = "stopped"   // No session, worktree exists
	StatusRunning   Status = "running"   // Session alive with recent output
	StatusIdle      Status = "idle"      // Session alive, no output past the idle threshold
	StatusExited    Status = "exited"    // Session exists but its pane terminated
	StatusCompleted Status = "completed" // Completion marker present
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{
		StatusDraft,
		StatusStopped,
		StatusRunning,
		StatusIdle,
		StatusExited,
		StatusCompleted,
	}
}

// Display returns a human-readable representation of the status.
func (s Status) Display() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusStopped:
		return "Stopped"
	case StatusRunning:
		return "Running"
	case StatusIdle:
		return "Idle"
	case StatusExited:
		return "Exited"
	case StatusCompleted:
		return "Completed"
	default:
		return string(s)
	}
}

// NeedsMetrics returns true if git metrics are collected for tasks in
// this status. All other statuses report placeholder metrics, bounding
// per-tick cost to the tasks actually doing something.
func (s Status) NeedsMetrics() bool {
	return s == StatusRunning || s == StatusCompleted
}

// StatusInput is the full fact set the derivation is computed from.
// It carries no references to live state so the function can be driven
// with synthetic inputs in tests.
type StatusInput struct {
	ActivityAge    time.Duration // Age of the session's activity marker
	IdleThreshold  time.Duration // Inactivity duration before Running becomes Idle
	SessionExists  bool          // A session with the task's deterministic name exists
	PaneDead       bool          // The session's pane reports terminated
	WorktreeExists bool          // The task's worktree directory exists
	Completed      bool          // The completion marker file is present
}

// DeriveStatus turns observed facts into one lifecycle status.
// It is a pure function: identical inputs yield identical output,
// independent of poll count or wall-clock time.
//
// Evaluation order, first match wins:
//  1. Completion marker present -> Completed. Overrides every other fact;
//     cleared only by an external mutation (a fresh start), never here.
//  2. No matching session -> Draft without a worktree, Stopped with one.
//  3. Pane terminated -> Exited.
//  4. Activity age at or past the idle threshold -> Idle, else Running.
func DeriveStatus(in StatusInput) Status {
	if in.Completed {
		return StatusCompleted
	}
	if !in.SessionExists {
		if in.WorktreeExists {
			return StatusStopped
		}
		return StatusDraft
	}
	if in.PaneDead {
		return StatusExited
	}
	if in.IdleThreshold > 0 && in.ActivityAge >= in.IdleThreshold {
		return StatusIdle
	}
	return StatusRunning
}
