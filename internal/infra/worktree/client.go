// Package worktree provides git worktree operations for task branches.
package worktree

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/agentry-dev/agentry/internal/domain"
)

// Client manages the worktree/branch pair behind each task.
type Client struct {
	repoRoot string
}

// NewClient creates a worktree client for a repository.
func NewClient(repoRoot string) *Client {
	return &Client{repoRoot: repoRoot}
}

// Ensure Client implements domain.WorktreeManager interface.
var _ domain.WorktreeManager = (*Client)(nil)

// Ensure creates the task's branch and worktree if needed and returns
// the worktree path. An existing worktree is returned as-is.
func (c *Client) Ensure(task domain.TaskMeta, baseBranch string) (string, error) {
	path := domain.WorktreePath(c.repoRoot, task)
	branch := domain.BranchName(task)

	exists, err := c.Exists(task)
	if err != nil {
		return "", fmt.Errorf("check worktree: %w", err)
	}
	if exists {
		return path, nil
	}

	branchExists, err := c.branchExists(branch)
	if err != nil {
		return "", fmt.Errorf("check branch: %w", err)
	}

	var args []string
	if branchExists {
		args = []string{"worktree", "add", path, branch}
	} else {
		args = []string{"worktree", "add", "-b", branch, path, baseBranch}
	}

	out, err := c.git(args...)
	if err != nil {
		// A registered-but-deleted worktree blocks re-adding; prune and
		// retry once.
		if strings.Contains(out, "already registered") || strings.Contains(out, "missing but already registered") {
			if _, pruneErr := c.git("worktree", "prune"); pruneErr != nil {
				return "", fmt.Errorf("prune stale worktrees: %w", pruneErr)
			}
			if out, err = c.git(args...); err != nil {
				return "", fmt.Errorf("create worktree after prune: %w: %s", err, out)
			}
		} else {
			return "", fmt.Errorf("create worktree: %w: %s", err, out)
		}
	}
	return path, nil
}

// Exists reports whether the task's worktree is registered and its
// directory is present on disk.
func (c *Client) Exists(task domain.TaskMeta) (bool, error) {
	paths, err := c.registeredPaths()
	if err != nil {
		return false, err
	}
	want := domain.WorktreePath(c.repoRoot, task)
	for _, p := range paths {
		if p != want {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, fmt.Errorf("check worktree directory: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// Remove deletes the task's worktree and branch. A dirty worktree
// fails with ErrWorktreeDirty unless force is set.
func (c *Client) Remove(task domain.TaskMeta) error {
	return c.remove(task, false)
}

// ForceRemove deletes the worktree even when it is dirty.
func (c *Client) ForceRemove(task domain.TaskMeta) error {
	return c.remove(task, true)
}

func (c *Client) remove(task domain.TaskMeta, force bool) error {
	exists, err := c.Exists(task)
	if err != nil {
		return err
	}
	if exists {
		args := []string{"worktree", "remove"}
		if force {
			args = append(args, "--force")
		}
		args = append(args, domain.WorktreePath(c.repoRoot, task))
		if out, err := c.git(args...); err != nil {
			if strings.Contains(out, "contains modified or untracked files") ||
				strings.Contains(out, "is dirty") {
				return domain.ErrWorktreeDirty
			}
			return fmt.Errorf("remove worktree: %w: %s", err, out)
		}
	} else {
		// The directory may be gone while the registration lingers.
		if _, err := c.git("worktree", "prune"); err != nil {
			return fmt.Errorf("prune worktrees: %w", err)
		}
	}

	branch := domain.BranchName(task)
	branchExists, err := c.branchExists(branch)
	if err != nil {
		return err
	}
	if branchExists {
		if out, err := c.git("branch", "-D", branch); err != nil {
			return fmt.Errorf("delete branch: %w: %s", err, out)
		}
	}
	return nil
}

func (c *Client) branchExists(branch string) (bool, error) {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = c.repoRoot
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check branch: %w", err)
	}
	return true, nil
}

// registeredPaths parses `git worktree list --porcelain` into paths.
func (c *Client) registeredPaths() ([]string, error) {
	out, err := c.git("worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	var paths []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if p, ok := strings.CutPrefix(line, "worktree "); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (c *Client) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.repoRoot
	out, err := cmd.CombinedOutput()
	return string(out), err
}
