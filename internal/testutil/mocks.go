// Package testutil provides shared test utilities and mock
// implementations of the domain ports.
package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/agentry-dev/agentry/internal/domain"
)

// MockClock is a test double for domain.Clock.
type MockClock struct {
	NowTime time.Time
}

// Now returns the configured time.
func (m *MockClock) Now() time.Time {
	return m.NowTime
}

// Advance moves the clock forward.
func (m *MockClock) Advance(d time.Duration) {
	m.NowTime = m.NowTime.Add(d)
}

// MockTaskStore is a test double for domain.TaskStore.
type MockTaskStore struct {
	Tasks     map[int]*domain.Task
	Completed map[int]bool
	CreateErr error
	GetErr    error
}

// NewMockTaskStore creates a MockTaskStore with initialized maps.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		Tasks:     make(map[int]*domain.Task),
		Completed: make(map[int]bool),
	}
}

var _ domain.TaskStore = (*MockTaskStore)(nil)

func (m *MockTaskStore) List() ([]*domain.Task, error) {
	tasks := make([]*domain.Task, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (m *MockTaskStore) Get(id int) (*domain.Task, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	task, ok := m.Tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

func (m *MockTaskStore) Create(task *domain.Task) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if _, ok := m.Tasks[task.ID]; ok {
		return domain.ErrTaskExists
	}
	m.Tasks[task.ID] = task
	return nil
}

func (m *MockTaskStore) Delete(task domain.TaskMeta) error {
	if _, ok := m.Tasks[task.ID]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(m.Tasks, task.ID)
	delete(m.Completed, task.ID)
	return nil
}

func (m *MockTaskStore) NextID() (int, error) {
	next := 1
	for id := range m.Tasks {
		if id >= next {
			next = id + 1
		}
	}
	return next, nil
}

func (m *MockTaskStore) IsCompleted(task domain.TaskMeta) bool {
	return m.Completed[task.ID]
}

func (m *MockTaskStore) MarkCompleted(task domain.TaskMeta) error {
	m.Completed[task.ID] = true
	return nil
}

func (m *MockTaskStore) ClearCompleted(task domain.TaskMeta) error {
	delete(m.Completed, task.ID)
	return nil
}

// MockSessionManager is a test double for domain.SessionManager.
type MockSessionManager struct {
	Sessions    map[string][]domain.SessionInfo // keyed by repo root
	StartCalls  []domain.StartSessionOptions
	KillCalls   []string
	AttachCalls []string
	StartErr    error
	KillErr     error
	ListErr     error
}

// NewMockSessionManager creates a MockSessionManager.
func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{Sessions: make(map[string][]domain.SessionInfo)}
}

var _ domain.SessionManager = (*MockSessionManager)(nil)

func (m *MockSessionManager) Start(_ context.Context, opts domain.StartSessionOptions) error {
	m.StartCalls = append(m.StartCalls, opts)
	if m.StartErr != nil {
		return m.StartErr
	}
	name := domain.SessionName(opts.Task)
	for _, si := range m.Sessions[opts.RepoRoot] {
		if si.Name == name {
			return domain.ErrSessionRunning
		}
	}
	m.Sessions[opts.RepoRoot] = append(m.Sessions[opts.RepoRoot], domain.SessionInfo{
		Name:      name,
		Task:      opts.Task,
		SessionID: int64(len(m.Sessions[opts.RepoRoot]) + 1),
	})
	return nil
}

func (m *MockSessionManager) Attach(sessionName string) error {
	m.AttachCalls = append(m.AttachCalls, sessionName)
	return nil
}

func (m *MockSessionManager) Kill(repoRoot, sessionName string) error {
	m.KillCalls = append(m.KillCalls, sessionName)
	if m.KillErr != nil {
		return m.KillErr
	}
	kept := m.Sessions[repoRoot][:0]
	for _, si := range m.Sessions[repoRoot] {
		if si.Name != sessionName {
			kept = append(kept, si)
		}
	}
	m.Sessions[repoRoot] = kept
	return nil
}

func (m *MockSessionManager) List(repoRoot string) ([]domain.SessionInfo, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]domain.SessionInfo, len(m.Sessions[repoRoot]))
	copy(out, m.Sessions[repoRoot])
	return out, nil
}

// MockWorktreeManager is a test double for domain.WorktreeManager.
type MockWorktreeManager struct {
	Existing    map[int]bool
	EnsureCalls []domain.TaskMeta
	RemoveCalls []domain.TaskMeta
	ForceCalls  []domain.TaskMeta
	EnsureErr   error
	RemoveErr   error
	Path        string
}

// NewMockWorktreeManager creates a MockWorktreeManager.
func NewMockWorktreeManager() *MockWorktreeManager {
	return &MockWorktreeManager{Existing: make(map[int]bool)}
}

var _ domain.WorktreeManager = (*MockWorktreeManager)(nil)

func (m *MockWorktreeManager) Ensure(task domain.TaskMeta, _ string) (string, error) {
	m.EnsureCalls = append(m.EnsureCalls, task)
	if m.EnsureErr != nil {
		return "", m.EnsureErr
	}
	m.Existing[task.ID] = true
	if m.Path != "" {
		return m.Path, nil
	}
	return "/tmp/worktrees/" + task.Slug, nil
}

func (m *MockWorktreeManager) Exists(task domain.TaskMeta) (bool, error) {
	return m.Existing[task.ID], nil
}

func (m *MockWorktreeManager) Remove(task domain.TaskMeta) error {
	m.RemoveCalls = append(m.RemoveCalls, task)
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	delete(m.Existing, task.ID)
	return nil
}

// ForceRemove discards the worktree regardless of dirtiness.
func (m *MockWorktreeManager) ForceRemove(task domain.TaskMeta) error {
	m.ForceCalls = append(m.ForceCalls, task)
	delete(m.Existing, task.ID)
	return nil
}

// MockMetricsEngine is a test double for domain.MetricsEngine.
type MockMetricsEngine struct {
	Results map[int]domain.TaskMetrics
	Err     error
	Calls   int
}

// NewMockMetricsEngine creates a MockMetricsEngine.
func NewMockMetricsEngine() *MockMetricsEngine {
	return &MockMetricsEngine{Results: make(map[int]domain.TaskMetrics)}
}

var _ domain.MetricsEngine = (*MockMetricsEngine)(nil)

func (m *MockMetricsEngine) Collect(task domain.TaskMeta, _ string) (domain.TaskMetrics, error) {
	m.Calls++
	if m.Err != nil {
		return domain.TaskMetrics{}, m.Err
	}
	if r, ok := m.Results[task.ID]; ok {
		r.Task = task
		return r, nil
	}
	return domain.TaskMetrics{Task: task}, nil
}

// MockDaemonGateway is a test double for domain.DaemonGateway.
type MockDaemonGateway struct {
	StartCalls  []domain.TaskMeta
	StopCalls   []domain.TaskMeta
	NotifyCalls int
	Snap        *domain.Snapshot
	StartErr    error
	StopErr     error
	SnapErr     error
	NotifyErr   error
	Stopped     int
}

var _ domain.DaemonGateway = (*MockDaemonGateway)(nil)

func (m *MockDaemonGateway) StartSession(_ domain.ProjectKey, task domain.TaskMeta, _, _ string, _ map[string]string) error {
	m.StartCalls = append(m.StartCalls, task)
	return m.StartErr
}

func (m *MockDaemonGateway) StopTask(_ domain.ProjectKey, task domain.TaskMeta) (int, error) {
	m.StopCalls = append(m.StopCalls, task)
	if m.StopErr != nil {
		return 0, m.StopErr
	}
	return m.Stopped, nil
}

func (m *MockDaemonGateway) StopSession(int64) (int, error) {
	return m.Stopped, m.StopErr
}

func (m *MockDaemonGateway) Snapshot(domain.ProjectKey) (*domain.Snapshot, error) {
	if m.SnapErr != nil {
		return nil, m.SnapErr
	}
	return m.Snap, nil
}

func (m *MockDaemonGateway) NotifyChanged(domain.ProjectKey) error {
	m.NotifyCalls++
	return m.NotifyErr
}
