package usecase

import (
	"context"
	"fmt"

	"github.com/agentry-dev/agentry/internal/domain"
)

// ListTasksInput contains the parameters for listing tasks.
type ListTasksInput struct {
	All bool // include completed tasks
}

// TaskRow is one line of task listing output: identity, derived
// status, and the live metrics when the task has any.
type TaskRow struct {
	Task    domain.TaskInfo
	Metrics *domain.TaskMetrics
	Session *domain.SessionInfo
}

// ListTasksOutput contains the listing rows.
type ListTasksOutput struct {
	Rows []TaskRow
}

// ListTasks is the use case for the task listing commands. It reads
// the daemon's composite snapshot so the CLI and the dashboard always
// show the same state.
type ListTasks struct {
	gateway domain.DaemonGateway
	project domain.ProjectKey
}

// NewListTasks creates a new ListTasks use case.
func NewListTasks(gateway domain.DaemonGateway, project domain.ProjectKey) *ListTasks {
	return &ListTasks{gateway: gateway, project: project}
}

// Execute fetches a snapshot and shapes it into rows.
func (uc *ListTasks) Execute(_ context.Context, in ListTasksInput) (*ListTasksOutput, error) {
	snap, err := uc.gateway.Snapshot(uc.project)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}

	out := &ListTasksOutput{}
	for _, t := range snap.Tasks {
		if !in.All && t.Status == domain.StatusCompleted {
			continue
		}
		meta := domain.TaskMeta{ID: t.ID, Slug: t.Slug}
		row := TaskRow{Task: t}
		if m, ok := snap.MetricsFor(meta); ok {
			row.Metrics = &m
		}
		if si, ok := snap.SessionFor(meta); ok {
			row.Session = &si
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
