package taskfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentry-dev/agentry/internal/domain"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	return New(root), root
}

func TestCreateAndGet(t *testing.T) {
	store, root := newTestStore(t)

	task := &domain.Task{
		ID:          1,
		Slug:        "fix-login",
		Title:       "Fix login flow",
		Description: "The session cookie is dropped on redirect.",
		BaseBranch:  "develop",
		Agent:       "claude",
	}
	require.NoError(t, store.Create(task))

	_, err := os.Stat(filepath.Join(domain.TasksDir(root), "1-fix-login.md"))
	require.NoError(t, err)

	got, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestCreate_Duplicate(t *testing.T) {
	store, _ := newTestStore(t)
	task := &domain.Task{ID: 1, Slug: "a", Title: "a"}

	require.NoError(t, store.Create(task))
	assert.ErrorIs(t, store.Create(task), domain.ErrTaskExists)
}

func TestGet_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(42)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestList_EmptyAndMissingDir(t *testing.T) {
	store, _ := newTestStore(t)

	tasks, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestList_OrderedSkipsForeignFiles(t *testing.T) {
	store, root := newTestStore(t)
	require.NoError(t, store.Create(&domain.Task{ID: 10, Slug: "later", Title: "later"}))
	require.NoError(t, store.Create(&domain.Task{ID: 2, Slug: "earlier", Title: "earlier"}))

	dir := domain.TasksDir(root)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive"), 0o755))

	tasks, err := store.List()
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, 2, tasks[0].ID)
	assert.Equal(t, 10, tasks[1].ID)
}

func TestReadFile_MalformedFrontmatter(t *testing.T) {
	store, root := newTestStore(t)
	dir := domain.TasksDir(root)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	content := "---\ntitle: [unclosed\n---\n\nStill the description.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3-broken.md"), []byte(content), 0o644))

	got, err := store.Get(3)
	require.NoError(t, err)
	// Malformed header degrades to a bare task named after the slug.
	assert.Equal(t, "broken", got.Title)
	assert.Equal(t, "Still the description.", got.Description)
}

func TestReadFile_NoFrontmatter(t *testing.T) {
	store, root := newTestStore(t)
	dir := domain.TasksDir(root)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "5-plain.md"), []byte("Just a body.\n"), 0o644))

	got, err := store.Get(5)
	require.NoError(t, err)
	assert.Equal(t, "plain", got.Title)
	assert.Equal(t, "Just a body.", got.Description)
}

func TestNextID(t *testing.T) {
	store, _ := newTestStore(t)

	next, err := store.NextID()
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	require.NoError(t, store.Create(&domain.Task{ID: 7, Slug: "a", Title: "a"}))
	next, err = store.NextID()
	require.NoError(t, err)
	assert.Equal(t, 8, next)
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)
	task := &domain.Task{ID: 1, Slug: "done", Title: "done"}
	require.NoError(t, store.Create(task))
	require.NoError(t, store.MarkCompleted(task.Meta()))

	require.NoError(t, store.Delete(task.Meta()))
	assert.False(t, store.IsCompleted(task.Meta()))
	_, err := store.Get(1)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	assert.ErrorIs(t, store.Delete(task.Meta()), domain.ErrTaskNotFound)
}

func TestCompletionMarkers(t *testing.T) {
	store, _ := newTestStore(t)
	meta := domain.TaskMeta{ID: 4, Slug: "ship"}

	assert.False(t, store.IsCompleted(meta))
	require.NoError(t, store.MarkCompleted(meta))
	assert.True(t, store.IsCompleted(meta))
	require.NoError(t, store.MarkCompleted(meta)) // idempotent
	require.NoError(t, store.ClearCompleted(meta))
	assert.False(t, store.IsCompleted(meta))
	require.NoError(t, store.ClearCompleted(meta)) // already gone
}

func TestSplitFrontmatter(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		header string
		body   string
	}{
		{
			name:   "header and body",
			in:     "---\ntitle: x\n---\nbody\n",
			header: "title: x\n",
			body:   "body\n",
		},
		{
			name: "no header",
			in:   "body only\n",
			body: "body only\n",
		},
		{
			name: "unterminated header",
			in:   "---\ntitle: x\nbody\n",
			body: "---\ntitle: x\nbody\n",
		},
		{
			name: "empty file",
			in:   "",
			body: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body := splitFrontmatter(tt.in)
			assert.Equal(t, tt.header, header)
			assert.Equal(t, tt.body, body)
		})
	}
}
