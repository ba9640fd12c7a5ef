package daemon

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/testutil"
)

type builderFixture struct {
	sessions  *testutil.MockSessionManager
	store     *testutil.MockTaskStore
	metrics   *testutil.MockMetricsEngine
	worktrees *testutil.MockWorktreeManager
	clock     *testutil.MockClock
	builder   *SnapshotBuilder
}

func newBuilderFixture() *builderFixture {
	f := &builderFixture{
		sessions:  testutil.NewMockSessionManager(),
		store:     testutil.NewMockTaskStore(),
		metrics:   testutil.NewMockMetricsEngine(),
		worktrees: testutil.NewMockWorktreeManager(),
		clock:     &testutil.MockClock{NowTime: time.Unix(1700000000, 0)},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.builder = NewSnapshotBuilder(
		f.sessions,
		func(string) domain.TaskStore { return f.store },
		func(string) domain.MetricsEngine { return f.metrics },
		func(string) domain.WorktreeManager { return f.worktrees },
		f.clock,
		15*time.Minute,
		log,
	)
	return f
}

func (f *builderFixture) addTask(id int, slug string) *domain.Task {
	task := &domain.Task{ID: id, Slug: slug, Title: slug}
	f.store.Tasks[id] = task
	return task
}

func (f *builderFixture) addSession(task domain.TaskMeta, lastActivity time.Time, paneDead bool) {
	f.sessions.Sessions["/repo"] = append(f.sessions.Sessions["/repo"], domain.SessionInfo{
		Name:           domain.SessionName(task),
		Task:           task,
		SessionID:      int64(len(f.sessions.Sessions["/repo"]) + 1),
		CreatedAtMS:    lastActivity.Add(-time.Minute).UnixMilli(),
		LastActivityMS: lastActivity.UnixMilli(),
		PaneDead:       paneDead,
	})
}

var testProject = domain.ProjectKey{RepoRoot: "/repo"}

func TestBuild_StatusDerivation(t *testing.T) {
	f := newBuilderFixture()
	now := f.clock.Now()

	running := f.addTask(1, "running")
	f.worktrees.Existing[1] = true
	f.addSession(running.Meta(), now.Add(-time.Second), false)

	idle := f.addTask(2, "idle")
	f.worktrees.Existing[2] = true
	f.addSession(idle.Meta(), now.Add(-time.Hour), false)

	exited := f.addTask(3, "exited")
	f.worktrees.Existing[3] = true
	f.addSession(exited.Meta(), now.Add(-time.Second), true)

	f.addTask(4, "stopped")
	f.worktrees.Existing[4] = true

	f.addTask(5, "draft")

	done := f.addTask(6, "done")
	f.store.Completed[done.ID] = true

	snap, err := f.builder.Build(testProject, nil, true)
	require.NoError(t, err)
	require.Len(t, snap.Tasks, 6)

	byID := map[int]domain.Status{}
	for _, info := range snap.Tasks {
		byID[info.ID] = info.Status
	}
	assert.Equal(t, domain.StatusRunning, byID[1])
	assert.Equal(t, domain.StatusIdle, byID[2])
	assert.Equal(t, domain.StatusExited, byID[3])
	assert.Equal(t, domain.StatusStopped, byID[4])
	assert.Equal(t, domain.StatusDraft, byID[5])
	assert.Equal(t, domain.StatusCompleted, byID[6])
}

func TestBuild_MetricsOnlyForActiveTasks(t *testing.T) {
	f := newBuilderFixture()
	now := f.clock.Now()

	running := f.addTask(1, "running")
	f.worktrees.Existing[1] = true
	f.addSession(running.Meta(), now, false)

	f.addTask(2, "draft")

	f.metrics.Results[1] = domain.TaskMetrics{UncommittedAdd: 10, CommitsAhead: 2}

	snap, err := f.builder.Build(testProject, nil, true)
	require.NoError(t, err)
	require.Len(t, snap.Metrics, 1)
	assert.Equal(t, 1, snap.Metrics[0].Task.ID)
	assert.Equal(t, 10, snap.Metrics[0].UncommittedAdd)
	assert.Equal(t, 2, snap.Metrics[0].CommitsAhead)
	assert.Equal(t, now.UnixMilli(), snap.Metrics[0].UpdatedAtMS)
	assert.Equal(t, 1, f.metrics.Calls)
}

func TestBuild_MetricsCarriedForwardBetweenTicks(t *testing.T) {
	f := newBuilderFixture()
	running := f.addTask(1, "running")
	f.worktrees.Existing[1] = true
	f.addSession(running.Meta(), f.clock.Now(), false)
	f.metrics.Results[1] = domain.TaskMetrics{UncommittedAdd: 5}

	first, err := f.builder.Build(testProject, nil, true)
	require.NoError(t, err)
	require.Len(t, first.Metrics, 1)
	require.Equal(t, 1, f.metrics.Calls)

	// Between metrics ticks the engine is not consulted and the cached
	// values pass through unchanged, so Equal reports no change.
	f.clock.Advance(300 * time.Millisecond)
	second, err := f.builder.Build(testProject, first, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.metrics.Calls)
	assert.True(t, second.Equal(first))
}

func TestBuild_UnchangedMetricsKeepTimestamp(t *testing.T) {
	f := newBuilderFixture()
	running := f.addTask(1, "running")
	f.worktrees.Existing[1] = true
	f.addSession(running.Meta(), f.clock.Now(), false)
	f.metrics.Results[1] = domain.TaskMetrics{UncommittedAdd: 5}

	first, err := f.builder.Build(testProject, nil, true)
	require.NoError(t, err)
	firstStamp := first.Metrics[0].UpdatedAtMS

	f.clock.Advance(time.Second)
	second, err := f.builder.Build(testProject, first, true)
	require.NoError(t, err)
	require.Len(t, second.Metrics, 1)
	assert.Equal(t, firstStamp, second.Metrics[0].UpdatedAtMS)
	assert.True(t, second.Equal(first))

	// A change in the numbers mints a fresh timestamp.
	f.metrics.Results[1] = domain.TaskMetrics{UncommittedAdd: 6}
	f.clock.Advance(time.Second)
	third, err := f.builder.Build(testProject, second, true)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().UnixMilli(), third.Metrics[0].UpdatedAtMS)
	assert.False(t, third.Equal(second))
}

func TestBuild_MetricsFailureDegradesToPlaceholder(t *testing.T) {
	f := newBuilderFixture()
	running := f.addTask(1, "running")
	f.worktrees.Existing[1] = true
	f.addSession(running.Meta(), f.clock.Now(), false)
	f.metrics.Err = assert.AnError

	snap, err := f.builder.Build(testProject, nil, true)
	require.NoError(t, err)
	require.Len(t, snap.Metrics, 1)
	assert.Equal(t, running.Meta(), snap.Metrics[0].Task)
	assert.Zero(t, snap.Metrics[0].UncommittedAdd)
}

func TestBuild_SessionListFailure(t *testing.T) {
	f := newBuilderFixture()
	f.sessions.ListErr = assert.AnError

	_, err := f.builder.Build(testProject, nil, true)
	assert.ErrorIs(t, err, assert.AnError)
}
