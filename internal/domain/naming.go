package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// SessionName returns the tmux session name for a task.
// Format: agentry-<id>-<slug>. The name is deterministic so that session
// lookup never needs a side index.
func SessionName(task TaskMeta) string {
	return fmt.Sprintf("agentry-%d-%s", task.ID, task.Slug)
}

// sessionPattern matches agentry session names: agentry-<id>-<slug>
var sessionPattern = regexp.MustCompile(`^agentry-(\d+)-(.+)$`)

// ParseSessionName extracts the task identity from a session name.
// Returns false if the name does not follow the agentry naming convention.
func ParseSessionName(name string) (TaskMeta, bool) {
	matches := sessionPattern.FindStringSubmatch(name)
	if matches == nil {
		return TaskMeta{}, false
	}
	id, err := strconv.Atoi(matches[1])
	if err != nil {
		return TaskMeta{}, false
	}
	return TaskMeta{ID: id, Slug: matches[2]}, true
}

// BranchName returns the git branch name for a task.
// Format: agentry/<id>-<slug>
func BranchName(task TaskMeta) string {
	return fmt.Sprintf("agentry/%d-%s", task.ID, task.Slug)
}

// StateDir returns the path to the .agentry directory for a project root.
func StateDir(repoRoot string) string {
	return filepath.Join(repoRoot, ".agentry")
}

// TasksDir returns the directory holding task markdown files.
func TasksDir(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "tasks")
}

// TaskFilePath returns the path of a task's markdown file.
func TaskFilePath(repoRoot string, task TaskMeta) string {
	return filepath.Join(TasksDir(repoRoot), fmt.Sprintf("%d-%s.md", task.ID, task.Slug))
}

// CompletedFlagPath returns the path of a task's completion marker.
// Presence of this file forces the derived status to Completed.
func CompletedFlagPath(repoRoot string, task TaskMeta) string {
	return filepath.Join(StateDir(repoRoot), "state", "completed", fmt.Sprintf("%d-%s", task.ID, task.Slug))
}

// ActivityStampPath returns the path of a session's activity marker.
// The session adapter's output hook touches this file on every byte of
// pane output.
func ActivityStampPath(repoRoot, sessionName string) string {
	return filepath.Join(StateDir(repoRoot), "state", "activity", sessionName+".stamp")
}

// WorktreesDir returns the directory where task worktrees are created.
func WorktreesDir(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "worktrees")
}

// WorktreePath returns the worktree path for a task.
func WorktreePath(repoRoot string, task TaskMeta) string {
	return filepath.Join(WorktreesDir(repoRoot), strconv.Itoa(task.ID))
}

// ConfigFileName is the name of the configuration file, both in the
// repository .agentry directory and in the global config directory.
const ConfigFileName = "config.toml"

// RepoConfigPath returns the path of the repository-level config file.
func RepoConfigPath(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), ConfigFileName)
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a task title into a slug usable in session and branch
// names: lowercase, alphanumeric runs joined by single dashes.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "task"
	}
	const maxLen = 40
	if len(s) > maxLen {
		s = strings.Trim(s[:maxLen], "-")
	}
	return s
}
