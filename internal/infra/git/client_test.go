package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/testutil"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	root = resolved

	runGit(t, root, "init", "-q", "-b", "main")
	runGit(t, root, "config", "user.email", "test@example.com")
	runGit(t, root, "config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("one\ntwo\n"), 0o644))
	runGit(t, root, "add", ".")
	runGit(t, root, "commit", "-q", "-m", "initial")
	return root
}

func TestFindRepoRoot(t *testing.T) {
	root := initRepo(t)
	sub := filepath.Join(root, "pkg", "deep")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	got, err := FindRepoRoot(sub)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	got, err = FindRepoRoot(root)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := FindRepoRoot(t.TempDir())
	assert.ErrorIs(t, err, domain.ErrNotGitRepository)
}

func TestHeadBranch(t *testing.T) {
	root := initRepo(t)

	branch, err := HeadBranch(root)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	runGit(t, root, "checkout", "-q", "-b", "feature/x")
	branch, err = HeadBranch(root)
	require.NoError(t, err)
	assert.Equal(t, "feature/x", branch)
}

func TestMetricsCollect(t *testing.T) {
	root := initRepo(t)
	task := domain.TaskMeta{ID: 1, Slug: "demo"}
	wtPath := domain.WorktreePath(root, task)
	runGit(t, root, "worktree", "add", "-q", "-b", domain.BranchName(task), wtPath, "main")

	clock := &testutil.MockClock{NowTime: time.Unix(1700000000, 0)}
	engine := NewMetrics(root, clock)

	// Clean worktree, no commits past the base.
	m, err := engine.Collect(task, "main")
	require.NoError(t, err)
	assert.Zero(t, m.UncommittedAdd)
	assert.Zero(t, m.UncommittedDel)
	assert.Zero(t, m.CommitsAhead)
	assert.Equal(t, clock.Now().UnixMilli(), m.UpdatedAtMS)

	// Modify a tracked file: three lines added, one removed.
	require.NoError(t, os.WriteFile(filepath.Join(wtPath, "README.md"), []byte("one\na\nb\nc\n"), 0o644))
	m, err = engine.Collect(task, "main")
	require.NoError(t, err)
	assert.Equal(t, 3, m.UncommittedAdd)
	assert.Equal(t, 1, m.UncommittedDel)

	// Commit it: the branch is one ahead and clean again.
	runGit(t, wtPath, "add", ".")
	runGit(t, wtPath, "commit", "-q", "-m", "work")
	m, err = engine.Collect(task, "main")
	require.NoError(t, err)
	assert.Zero(t, m.UncommittedAdd)
	assert.Equal(t, 1, m.CommitsAhead)
}

func TestMetricsCollect_EmptyBaseUsesHead(t *testing.T) {
	root := initRepo(t)
	task := domain.TaskMeta{ID: 2, Slug: "x"}
	wtPath := domain.WorktreePath(root, task)
	runGit(t, root, "worktree", "add", "-q", "-b", domain.BranchName(task), wtPath, "main")

	engine := NewMetrics(root, &testutil.MockClock{NowTime: time.Now()})
	m, err := engine.Collect(task, "")
	require.NoError(t, err)
	assert.Zero(t, m.CommitsAhead)
}

func TestMetricsCollect_UnknownBranch(t *testing.T) {
	root := initRepo(t)
	task := domain.TaskMeta{ID: 3, Slug: "nope"}
	require.NoError(t, os.MkdirAll(domain.WorktreePath(root, task), 0o755))

	engine := NewMetrics(root, &testutil.MockClock{NowTime: time.Now()})
	_, err := engine.Collect(task, "main")
	assert.Error(t, err)
}
