// Package domain contains core business entities and interfaces.
package domain

// TaskMeta is the stable identity of a task. Every session, branch,
// worktree and marker file is keyed by this pair.
type TaskMeta struct {
	Slug string `json:"slug"`
	ID   int    `json:"id"`
}

// Task represents a work unit managed by agentry.
// Tasks are persisted as markdown files under .agentry/tasks and are
// only ever observed (never created) by the daemon.
type Task struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	BaseBranch  string `json:"baseBranch,omitempty"`
	Agent       string `json:"agent,omitempty"`
	ID          int    `json:"id"`
}

// Meta returns the task's identity pair.
func (t *Task) Meta() TaskMeta {
	return TaskMeta{ID: t.ID, Slug: t.Slug}
}
