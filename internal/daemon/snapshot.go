package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/agentry-dev/agentry/internal/domain"
)

// Openers construct the per-project collaborators the snapshot builder
// needs. One daemon serves arbitrarily many projects, so project-scoped
// adapters are opened on demand by repo root.
type (
	StoreOpener    func(repoRoot string) domain.TaskStore
	MetricsOpener  func(repoRoot string) domain.MetricsEngine
	WorktreeOpener func(repoRoot string) domain.WorktreeManager
)

// SnapshotBuilder assembles the composite snapshot for one project from
// observed facts: live sessions, task files, completion markers,
// worktree existence and git metrics.
type SnapshotBuilder struct {
	sessions      domain.SessionManager
	stores        StoreOpener
	metrics       MetricsOpener
	worktrees     WorktreeOpener
	clock         domain.Clock
	log           *slog.Logger
	idleThreshold time.Duration
}

// NewSnapshotBuilder creates a builder.
func NewSnapshotBuilder(
	sessions domain.SessionManager,
	stores StoreOpener,
	metrics MetricsOpener,
	worktrees WorktreeOpener,
	clock domain.Clock,
	idleThreshold time.Duration,
	log *slog.Logger,
) *SnapshotBuilder {
	return &SnapshotBuilder{
		sessions:      sessions,
		stores:        stores,
		metrics:       metrics,
		worktrees:     worktrees,
		clock:         clock,
		idleThreshold: idleThreshold,
		log:           log,
	}
}

// Build produces a normalized snapshot for the project. prev is the
// last snapshot sent to this project's subscribers; it supplies cached
// metrics when withMetrics is false and keeps UpdatedAtMS stable when
// the numbers have not changed. Per-task failures are logged and
// degrade that task to placeholder data; they never fail the build.
func (b *SnapshotBuilder) Build(project domain.ProjectKey, prev *domain.Snapshot, withMetrics bool) (*domain.Snapshot, error) {
	root := project.RepoRoot

	sessions, err := b.sessions.List(root)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	store := b.stores(root)
	tasks, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	worktrees := b.worktrees(root)
	now := b.clock.Now()

	snap := &domain.Snapshot{
		Tasks:    make([]domain.TaskInfo, 0, len(tasks)),
		Sessions: sessions,
	}

	var active []*domain.Task
	for _, task := range tasks {
		meta := task.Meta()
		status := b.deriveFor(snap, store, worktrees, meta, now)
		snap.Tasks = append(snap.Tasks, domain.TaskInfo{
			ID:         task.ID,
			Slug:       task.Slug,
			BaseBranch: task.BaseBranch,
			Agent:      task.Agent,
			Status:     status,
		})
		if status.NeedsMetrics() {
			active = append(active, task)
		}
	}

	snap.Metrics = b.collectMetrics(root, active, prev, withMetrics, now)
	snap.Normalize()
	return snap, nil
}

// deriveFor runs the status derivation for one task against the listed
// session facts and the filesystem markers.
func (b *SnapshotBuilder) deriveFor(
	snap *domain.Snapshot,
	store domain.TaskStore,
	worktrees domain.WorktreeManager,
	meta domain.TaskMeta,
	now time.Time,
) domain.Status {
	in := domain.StatusInput{
		Completed:     store.IsCompleted(meta),
		IdleThreshold: b.idleThreshold,
	}
	if session, ok := snap.SessionFor(meta); ok {
		in.SessionExists = true
		in.PaneDead = session.PaneDead
		if session.LastActivityMS > 0 {
			in.ActivityAge = now.Sub(time.UnixMilli(session.LastActivityMS))
		}
	}
	exists, err := worktrees.Exists(meta)
	if err != nil {
		b.log.Warn("worktree check failed", "task", meta.ID, "slug", meta.Slug, "error", err)
	}
	in.WorktreeExists = exists
	return domain.DeriveStatus(in)
}

// collectMetrics computes metrics for the active (Running/Completed)
// tasks, or carries the previous values forward when a metrics tick is
// not due yet.
func (b *SnapshotBuilder) collectMetrics(
	root string,
	active []*domain.Task,
	prev *domain.Snapshot,
	withMetrics bool,
	now time.Time,
) []domain.TaskMetrics {
	if len(active) == 0 {
		return nil
	}

	if !withMetrics && prev != nil {
		out := make([]domain.TaskMetrics, 0, len(active))
		for _, task := range active {
			if m, ok := prev.MetricsFor(task.Meta()); ok {
				out = append(out, m)
			} else {
				out = append(out, domain.TaskMetrics{Task: task.Meta(), UpdatedAtMS: now.UnixMilli()})
			}
		}
		return out
	}

	engine := b.metrics(root)
	out := make([]domain.TaskMetrics, 0, len(active))
	for _, task := range active {
		meta := task.Meta()
		m, err := engine.Collect(meta, task.BaseBranch)
		if err != nil {
			b.log.Warn("metrics collection failed", "task", meta.ID, "slug", meta.Slug, "error", err)
			m = domain.TaskMetrics{Task: meta}
		}
		m.Task = meta
		m.UpdatedAtMS = now.UnixMilli()
		if prev != nil {
			if pm, ok := prev.MetricsFor(meta); ok &&
				pm.UncommittedAdd == m.UncommittedAdd &&
				pm.UncommittedDel == m.UncommittedDel &&
				pm.CommitsAhead == m.CommitsAhead {
				m.UpdatedAtMS = pm.UpdatedAtMS
			}
		}
		out = append(out, m)
	}
	return out
}
