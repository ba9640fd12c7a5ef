package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentry-dev/agentry/internal/domain"
)

func TestSessionName(t *testing.T) {
	meta := domain.TaskMeta{ID: 7, Slug: "fix-login-bug"}
	assert.Equal(t, "agentry-7-fix-login-bug", domain.SessionName(meta))
}

func TestParseSessionName(t *testing.T) {
	meta, ok := domain.ParseSessionName("agentry-42-refactor-auth")
	require.True(t, ok)
	assert.Equal(t, 42, meta.ID)
	assert.Equal(t, "refactor-auth", meta.Slug)
}

func TestParseSessionName_Roundtrip(t *testing.T) {
	orig := domain.TaskMeta{ID: 3, Slug: "add-metrics"}
	meta, ok := domain.ParseSessionName(domain.SessionName(orig))
	require.True(t, ok)
	assert.Equal(t, orig, meta)
}

func TestParseSessionName_Foreign(t *testing.T) {
	// Sessions on the shared socket that were not created by us must
	// be skipped, not misattributed.
	for _, name := range []string{
		"main",
		"agentry-",
		"agentry-abc-slug",
		"crew-1",
		"",
	} {
		_, ok := domain.ParseSessionName(name)
		assert.False(t, ok, "name %q", name)
	}
}

func TestBranchName(t *testing.T) {
	meta := domain.TaskMeta{ID: 12, Slug: "speed-up-ci"}
	assert.Equal(t, "agentry/12-speed-up-ci", domain.BranchName(meta))
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fix login bug", "fix-login-bug"},
		{"  spaces   everywhere  ", "spaces-everywhere"},
		{"Ünïcode & symbols!!", "n-code-symbols"},
		{"already-slugged", "already-slugged"},
		{"CAPS", "caps"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.Slugify(tt.in), "input %q", tt.in)
	}
}

func TestSlugify_MaxLength(t *testing.T) {
	long := ""
	for i := 0; i < 20; i++ {
		long += "abcdefgh "
	}
	got := domain.Slugify(long)
	assert.LessOrEqual(t, len(got), 40)
}

func TestPaths(t *testing.T) {
	meta := domain.TaskMeta{ID: 5, Slug: "demo"}
	root := "/repo"

	assert.Equal(t, "/repo/.agentry", domain.StateDir(root))
	assert.Equal(t, "/repo/.agentry/tasks/5-demo.md", domain.TaskFilePath(root, meta))
	assert.Equal(t, "/repo/.agentry/state/completed/5-demo", domain.CompletedFlagPath(root, meta))
	assert.Equal(t, "/repo/.agentry/worktrees/5", domain.WorktreePath(root, meta))
	assert.Equal(t, "/repo/.agentry/state/activity/agentry-5-demo.stamp",
		domain.ActivityStampPath(root, "agentry-5-demo"))
}
