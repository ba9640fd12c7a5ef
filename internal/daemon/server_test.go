package daemon_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentry-dev/agentry/internal/daemon"
	"github.com/agentry-dev/agentry/internal/daemon/client"
	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/protocol"
	"github.com/agentry-dev/agentry/internal/testutil"
)

var testProject = domain.ProjectKey{RepoRoot: "/repo"}

type serverFixture struct {
	sessions  *testutil.MockSessionManager
	store     *testutil.MockTaskStore
	metrics   *testutil.MockMetricsEngine
	worktrees *testutil.MockWorktreeManager
	clock     *testutil.MockClock
	server    *daemon.Server
	client    *client.Client
	socket    string
}

// startServer brings up a daemon on a private socket with all
// collaborators faked. The poll interval is pushed out so state only
// changes through explicit requests.
func startServer(t *testing.T) *serverFixture {
	t.Helper()

	f := &serverFixture{
		sessions:  testutil.NewMockSessionManager(),
		store:     testutil.NewMockTaskStore(),
		metrics:   testutil.NewMockMetricsEngine(),
		worktrees: testutil.NewMockWorktreeManager(),
		clock:     &testutil.MockClock{NowTime: time.Unix(1700000000, 0)},
		socket:    filepath.Join(t.TempDir(), "agentry.sock"),
	}

	cfg := domain.NewDefaultConfig()
	cfg.Daemon.PollIntervalMS = int(time.Hour / time.Millisecond)
	cfg.Daemon.MetricsIntervalMS = 1

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := daemon.NewSnapshotBuilder(
		f.sessions,
		func(string) domain.TaskStore { return f.store },
		func(string) domain.MetricsEngine { return f.metrics },
		func(string) domain.WorktreeManager { return f.worktrees },
		f.clock,
		cfg.IdleThreshold(),
		log,
	)
	tuis := daemon.NewTuiRegistry(f.clock, nil)
	f.server = daemon.NewServer(cfg, "test-version", f.socket, f.sessions, builder, tuis, log)

	require.NoError(t, f.server.Listen())
	go func() { _ = f.server.Run() }()
	t.Cleanup(f.server.Stop)

	f.client = client.New(f.socket)
	require.NoError(t, f.client.Ping())
	return f
}

func (f *serverFixture) addTask(id int, slug string, withSession bool) *domain.Task {
	task := &domain.Task{ID: id, Slug: slug, Title: slug}
	f.store.Tasks[id] = task
	f.worktrees.Existing[id] = true
	if withSession {
		meta := task.Meta()
		f.sessions.Sessions[testProject.RepoRoot] = append(f.sessions.Sessions[testProject.RepoRoot], domain.SessionInfo{
			Name:           domain.SessionName(meta),
			Task:           meta,
			SessionID:      int64(id),
			LastActivityMS: f.clock.Now().UnixMilli(),
		})
	}
	return task
}

// nextSnapshot reads a subscription push with a deadline, so a missing
// broadcast fails the test instead of hanging it.
func nextSnapshot(t *testing.T, sub *client.Subscription) *domain.Snapshot {
	t.Helper()
	type result struct {
		snap *domain.Snapshot
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		snap, err := sub.Next()
		ch <- result{snap, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot push")
		return nil
	}
}

func startSessionMsg(task domain.TaskMeta, dir string) protocol.StartSession {
	return protocol.StartSession{
		Project: testProject,
		Task:    task,
		Command: "claude",
		Dir:     dir,
		Env:     map[string]string{"AGENTRY_TASK_ID": "1"},
	}
}

func TestServer_PingAndVersion(t *testing.T) {
	f := startServer(t)

	require.NoError(t, f.client.Ping())
	version, err := f.client.Version()
	require.NoError(t, err)
	assert.Equal(t, "test-version", version)
}

func TestServer_GetSnapshot(t *testing.T) {
	f := startServer(t)
	f.addTask(1, "first", true)
	f.addTask(2, "second", false)

	snap, err := f.client.Snapshot(testProject)
	require.NoError(t, err)
	require.Len(t, snap.Tasks, 2)
	assert.Equal(t, domain.StatusRunning, snap.Tasks[0].Status)
	assert.Equal(t, domain.StatusStopped, snap.Tasks[1].Status)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, int64(1), snap.Sessions[0].SessionID)
}

func TestServer_SubscribeStreamsChanges(t *testing.T) {
	f := startServer(t)
	f.addTask(1, "first", true)

	sub, err := f.client.Subscribe(testProject)
	require.NoError(t, err)
	defer sub.Close()

	initial := nextSnapshot(t, sub)
	require.Len(t, initial.Tasks, 1)
	assert.Equal(t, domain.StatusRunning, initial.Tasks[0].Status)

	// Unchanged state must not produce a push; the next frame on the
	// stream is the snapshot for the later, real change.
	require.NoError(t, f.client.NotifyChanged(testProject))

	f.addTask(2, "second", false)
	require.NoError(t, f.client.NotifyChanged(testProject))

	next := nextSnapshot(t, sub)
	require.Len(t, next.Tasks, 2)
	assert.Equal(t, "second", next.Tasks[1].Slug)
}

func TestServer_NewSubscriberDoesNotHideChanges(t *testing.T) {
	f := startServer(t)
	f.addTask(1, "first", true)

	first, err := f.client.Subscribe(testProject)
	require.NoError(t, err)
	defer first.Close()
	require.Len(t, nextSnapshot(t, first).Tasks, 1)

	// A change lands, then a second dashboard subscribes before any
	// poll or notify runs. The rebuild its handshake triggers must
	// reach the first subscriber too, not just the newcomer.
	f.addTask(2, "second", false)

	second, err := f.client.Subscribe(testProject)
	require.NoError(t, err)
	defer second.Close()
	require.Len(t, nextSnapshot(t, second).Tasks, 2)

	got := nextSnapshot(t, first)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, "second", got.Tasks[1].Slug)
}

func TestServer_StartSession(t *testing.T) {
	f := startServer(t)
	task := f.addTask(1, "work", false)

	msg := startSessionMsg(task.Meta(), "/repo/.agentry/worktrees/1-work")
	require.NoError(t, f.client.StartSession(msg))
	require.Len(t, f.sessions.StartCalls, 1)
	assert.Equal(t, "claude", f.sessions.StartCalls[0].Command)
	assert.Equal(t, testProject.RepoRoot, f.sessions.StartCalls[0].RepoRoot)

	err := f.client.StartSession(msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestServer_StopTask(t *testing.T) {
	f := startServer(t)
	task := f.addTask(1, "work", true)

	stopped, err := f.client.StopTask(testProject, task.Meta())
	require.NoError(t, err)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, []string{domain.SessionName(task.Meta())}, f.sessions.KillCalls)

	stopped, err = f.client.StopTask(testProject, task.Meta())
	require.NoError(t, err)
	assert.Zero(t, stopped)
}

func TestServer_StopSessionByID(t *testing.T) {
	f := startServer(t)
	task := f.addTask(1, "work", true)

	// The project must be known to the daemon for the id scan to see it.
	_, err := f.client.Snapshot(testProject)
	require.NoError(t, err)

	stopped, err := f.client.StopSession(1)
	require.NoError(t, err)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, []string{domain.SessionName(task.Meta())}, f.sessions.KillCalls)

	stopped, err = f.client.StopSession(99)
	require.NoError(t, err)
	assert.Zero(t, stopped)
}

func TestServer_TuiFollowFlow(t *testing.T) {
	f := startServer(t)

	pid := os.Getpid()
	id, err := f.client.TuiRegister(testProject, pid)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	items, err := f.client.TuiList(testProject)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, pid, items[0].PID)

	follower := client.New(f.socket)
	stream, err := follower.Follow(testProject, 0)
	require.NoError(t, err)
	defer stream.Close()
	assert.Equal(t, 1, stream.TuiID)

	require.NoError(t, f.client.TuiFocusChange(testProject, 1, 42))
	event, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, 42, event.TaskID)

	require.NoError(t, f.client.TuiUnregister(testProject, pid))
	_, err = stream.Next()
	assert.ErrorIs(t, err, domain.ErrFollowStopped)
}

func TestServer_FollowNoTarget(t *testing.T) {
	f := startServer(t)

	_, err := f.client.Follow(testProject, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such TUI")
}

func TestServer_SecondInstanceRefused(t *testing.T) {
	f := startServer(t)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	second := daemon.NewServer(domain.NewDefaultConfig(), "other", f.socket, f.sessions, nil, nil, log)
	assert.ErrorIs(t, second.Listen(), domain.ErrDaemonRunning)
}

func TestServer_StaleSocketReplaced(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "agentry.sock")
	require.NoError(t, os.WriteFile(socket, nil, 0o600))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := daemon.NewServer(domain.NewDefaultConfig(), "test", socket, testutil.NewMockSessionManager(), nil, nil, log)
	require.NoError(t, srv.Listen())
	defer srv.Stop()
}

func TestServer_ShutdownRequest(t *testing.T) {
	f := startServer(t)

	require.NoError(t, f.client.Shutdown())

	// The socket is unlinked on the way out; give the accept loop a
	// moment to observe the close.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(f.socket); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("socket still present after shutdown")
}

func TestProbeSocket_NoListener(t *testing.T) {
	err := daemon.ProbeSocket(filepath.Join(t.TempDir(), "missing.sock"), 100*time.Millisecond)
	assert.Error(t, err)
}
