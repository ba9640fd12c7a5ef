// Package git provides repository discovery and live branch metrics.
package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/agentry-dev/agentry/internal/domain"
)

// FindRepoRoot resolves the repository root for a directory, walking
// up through parent directories like git itself does.
func FindRepoRoot(dir string) (string, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", domain.ErrNotGitRepository
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("resolve worktree: %w", err)
	}
	root, err := filepath.Abs(wt.Filesystem.Root())
	if err != nil {
		return "", fmt.Errorf("canonicalize root: %w", err)
	}
	return root, nil
}

// HeadBranch returns the short name of the repository's current branch.
func HeadBranch(repoRoot string) (string, error) {
	repo, err := gogit.PlainOpen(repoRoot)
	if err != nil {
		return "", domain.ErrNotGitRepository
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Name().Short(), nil
}

// Metrics implements the metrics engine for one project: uncommitted
// line counts from the task worktree and commits-ahead relative to the
// base branch.
type Metrics struct {
	repoRoot string
	clock    domain.Clock
}

// NewMetrics creates a metrics engine for a repository.
func NewMetrics(repoRoot string, clock domain.Clock) *Metrics {
	return &Metrics{repoRoot: repoRoot, clock: clock}
}

// Ensure Metrics implements domain.MetricsEngine interface.
var _ domain.MetricsEngine = (*Metrics)(nil)

// Collect computes the task's live metrics. An empty base branch falls
// back to the repository's current branch.
func (m *Metrics) Collect(task domain.TaskMeta, baseBranch string) (domain.TaskMetrics, error) {
	out := domain.TaskMetrics{Task: task, UpdatedAtMS: m.clock.Now().UnixMilli()}

	wtPath := domain.WorktreePath(m.repoRoot, task)
	add, del, err := uncommittedNumstat(wtPath)
	if err != nil {
		return out, fmt.Errorf("uncommitted stats: %w", err)
	}
	out.UncommittedAdd = add
	out.UncommittedDel = del

	if baseBranch == "" {
		baseBranch, err = HeadBranch(m.repoRoot)
		if err != nil {
			return out, err
		}
	}
	ahead, err := m.commitsAhead(domain.BranchName(task), baseBranch)
	if err != nil {
		return out, fmt.Errorf("commits ahead: %w", err)
	}
	out.CommitsAhead = ahead
	return out, nil
}

// uncommittedNumstat sums added and deleted lines against HEAD,
// including staged changes. Binary files count as zero.
func uncommittedNumstat(worktreePath string) (add, del int, err error) {
	cmd := exec.Command("git", "diff", "--numstat", "HEAD")
	cmd.Dir = worktreePath
	raw, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("git diff --numstat: %w", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		// "-" marks binary files.
		if a, err := strconv.Atoi(fields[0]); err == nil {
			add += a
		}
		if d, err := strconv.Atoi(fields[1]); err == nil {
			del += d
		}
	}
	return add, del, nil
}

// commitsAhead counts commits on branch that are not reachable from
// base, via merge base.
func (m *Metrics) commitsAhead(branch, base string) (int, error) {
	repo, err := gogit.PlainOpen(m.repoRoot)
	if err != nil {
		return 0, domain.ErrNotGitRepository
	}

	branchCommit, err := resolveBranchCommit(repo, branch)
	if err != nil {
		return 0, err
	}
	baseCommit, err := resolveBranchCommit(repo, base)
	if err != nil {
		return 0, err
	}

	bases, err := branchCommit.MergeBase(baseCommit)
	if err != nil {
		return 0, fmt.Errorf("merge base: %w", err)
	}
	stop := make(map[plumbing.Hash]bool, len(bases))
	for _, b := range bases {
		stop[b.Hash] = true
	}

	count := 0
	iter := object.NewCommitPreorderIter(branchCommit, nil, nil)
	err = iter.ForEach(func(c *object.Commit) error {
		if stop[c.Hash] {
			return storer.ErrStop
		}
		count++
		return nil
	})
	if err != nil && err != storer.ErrStop {
		return 0, fmt.Errorf("walk commits: %w", err)
	}
	return count, nil
}

func resolveBranchCommit(repo *gogit.Repository, branch string) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", ref.Hash(), err)
	}
	return commit, nil
}
