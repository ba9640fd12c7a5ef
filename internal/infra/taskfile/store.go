// Package taskfile implements the task store on markdown files with a
// YAML frontmatter block, one file per task under .agentry/tasks.
package taskfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentry-dev/agentry/internal/domain"
)

// taskFilePattern matches "<id>-<slug>.md".
var taskFilePattern = regexp.MustCompile(`^(\d+)-(.+)\.md$`)

const frontmatterDelim = "---"

// frontmatter is the YAML header of a task file. The id and slug live
// in the filename; the body below the header is the description.
type frontmatter struct {
	Title      string `yaml:"title,omitempty"`
	BaseBranch string `yaml:"base_branch,omitempty"`
	Agent      string `yaml:"agent,omitempty"`
}

// Store implements domain.TaskStore on the project's task directory.
type Store struct {
	repoRoot string
}

// New creates a store for a repository.
func New(repoRoot string) *Store {
	return &Store{repoRoot: repoRoot}
}

// Ensure Store implements domain.TaskStore interface.
var _ domain.TaskStore = (*Store)(nil)

// List returns all tasks, ordered by id.
func (s *Store) List() ([]*domain.Task, error) {
	entries, err := os.ReadDir(domain.TasksDir(s.repoRoot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks dir: %w", err)
	}

	var tasks []*domain.Task
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := taskFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		task, err := s.readFile(filepath.Join(domain.TasksDir(s.repoRoot), entry.Name()), id, m[2])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	sortTasks(tasks)
	return tasks, nil
}

// Get retrieves a task by id.
func (s *Store) Get(id int) (*domain.Task, error) {
	tasks, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

// Create writes a new task file. An existing file for the same id and
// slug is an error.
func (s *Store) Create(task *domain.Task) error {
	dir := domain.TasksDir(s.repoRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}
	path := domain.TaskFilePath(s.repoRoot, task.Meta())
	if _, err := os.Stat(path); err == nil {
		return domain.ErrTaskExists
	}

	fm := frontmatter{
		Title:      task.Title,
		BaseBranch: task.BaseBranch,
		Agent:      task.Agent,
	}
	header, err := yaml.Marshal(&fm)
	if err != nil {
		return fmt.Errorf("encode frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString(frontmatterDelim + "\n")
	b.Write(header)
	b.WriteString(frontmatterDelim + "\n")
	if task.Description != "" {
		b.WriteString("\n" + strings.TrimRight(task.Description, "\n") + "\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	return nil
}

// Delete removes a task file and its completion marker.
func (s *Store) Delete(task domain.TaskMeta) error {
	path := domain.TaskFilePath(s.repoRoot, task)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrTaskNotFound
		}
		return fmt.Errorf("remove task file: %w", err)
	}
	return s.ClearCompleted(task)
}

// NextID returns one more than the highest id in use, starting at 1.
func (s *Store) NextID() (int, error) {
	tasks, err := s.List()
	if err != nil {
		return 0, err
	}
	next := 1
	for _, t := range tasks {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	return next, nil
}

// IsCompleted reports whether the completion marker is present.
func (s *Store) IsCompleted(task domain.TaskMeta) bool {
	_, err := os.Stat(domain.CompletedFlagPath(s.repoRoot, task))
	return err == nil
}

// MarkCompleted writes the completion marker. Idempotent.
func (s *Store) MarkCompleted(task domain.TaskMeta) error {
	path := domain.CompletedFlagPath(s.repoRoot, task)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create completed dir: %w", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return fmt.Errorf("write completion marker: %w", err)
	}
	return nil
}

// ClearCompleted removes the completion marker if present.
func (s *Store) ClearCompleted(task domain.TaskMeta) error {
	err := os.Remove(domain.CompletedFlagPath(s.repoRoot, task))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove completion marker: %w", err)
	}
	return nil
}

// readFile parses one task file. A missing or malformed frontmatter
// block degrades to a bare task rather than failing the whole listing.
func (s *Store) readFile(path string, id int, slug string) (*domain.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	task := &domain.Task{ID: id, Slug: slug}
	header, body := splitFrontmatter(string(data))
	if header != "" {
		var fm frontmatter
		if err := yaml.Unmarshal([]byte(header), &fm); err == nil {
			task.Title = fm.Title
			task.BaseBranch = fm.BaseBranch
			task.Agent = fm.Agent
		}
	}
	task.Description = strings.TrimSpace(body)
	if task.Title == "" {
		task.Title = slug
	}
	return task, nil
}

// splitFrontmatter separates the YAML header from the markdown body.
func splitFrontmatter(content string) (header, body string) {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\n") != frontmatterDelim {
		return "", content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\n") == frontmatterDelim {
			return strings.Join(lines[1:i], ""), strings.Join(lines[i+1:], "")
		}
	}
	return "", content
}

func sortTasks(tasks []*domain.Task) {
	slices.SortFunc(tasks, func(a, b *domain.Task) int {
		return a.ID - b.ID
	})
}
