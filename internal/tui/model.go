// Package tui implements the dashboard: a live task table fed by the
// daemon's snapshot stream, with focus reporting for followers.
package tui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentry-dev/agentry/internal/daemon/client"
	"github.com/agentry-dev/agentry/internal/domain"
)

// Model is the dashboard TUI model.
type Model struct {
	client         *client.Client
	sub            *client.Subscription
	project        domain.ProjectKey
	tmuxSocketPath string

	snapshot *domain.Snapshot
	err      error

	keys   KeyMap
	styles Styles

	tuiID  int
	cursor int
	width  int
	height int
}

// New creates a dashboard model. The caller has already registered
// with the daemon and holds an open subscription.
func New(c *client.Client, sub *client.Subscription, project domain.ProjectKey, tuiID int, tmuxSocketPath string) *Model {
	return &Model{
		client:         c,
		sub:            sub,
		project:        project,
		tmuxSocketPath: tmuxSocketPath,
		tuiID:          tuiID,
		keys:           DefaultKeyMap(),
		styles:         DefaultStyles(),
	}
}

// Init starts the snapshot pump.
func (m *Model) Init() tea.Cmd {
	return m.nextSnapshot()
}

// nextSnapshot blocks on the subscription and delivers one push.
func (m *Model) nextSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.sub.Next()
		if err != nil {
			return MsgStreamClosed{Err: err}
		}
		return MsgSnapshot{Snapshot: snap}
	}
}

// reportFocus tells the daemon which task is selected, so followers
// can mirror it.
func (m *Model) reportFocus() tea.Cmd {
	task, ok := m.selectedTask()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		return MsgFocusReported{Err: m.client.TuiFocusChange(m.project, m.tuiID, task.ID)}
	}
}

func (m *Model) selectedTask() (domain.TaskInfo, bool) {
	if m.snapshot == nil || m.cursor >= len(m.snapshot.Tasks) {
		return domain.TaskInfo{}, false
	}
	return m.snapshot.Tasks[m.cursor], true
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case MsgSnapshot:
		m.snapshot = msg.Snapshot
		if n := len(m.snapshot.Tasks); n > 0 && m.cursor >= n {
			m.cursor = n - 1
		}
		return m, m.nextSnapshot()

	case MsgStreamClosed:
		m.err = msg.Err
		return m, tea.Quit

	case MsgAttachFinished:
		if msg.Err != nil {
			m.err = msg.Err
		}
		return m, nil

	case MsgFocusReported:
		if msg.Err != nil {
			m.err = msg.Err
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
				return m, m.reportFocus()
			}
		case key.Matches(msg, m.keys.Down):
			if m.snapshot != nil && m.cursor < len(m.snapshot.Tasks)-1 {
				m.cursor++
				return m, m.reportFocus()
			}
		case key.Matches(msg, m.keys.Attach):
			return m, m.attachSelected()
		}
	}
	return m, nil
}

// attachSelected suspends the dashboard and attaches to the selected
// task's session until the user detaches.
func (m *Model) attachSelected() tea.Cmd {
	task, ok := m.selectedTask()
	if !ok {
		return nil
	}
	name := domain.SessionName(domain.TaskMeta{ID: task.ID, Slug: task.Slug})
	cmd := exec.Command("tmux", "-S", m.tmuxSocketPath, "attach", "-t", name)
	cmd.Env = envWithoutTmux(os.Environ())
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return MsgAttachFinished{Err: err}
	})
}

func envWithoutTmux(env []string) []string {
	out := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "TMUX=") || strings.HasPrefix(kv, "TMUX_PANE=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// View renders the task table.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("agentry - "+m.project.RepoRoot) + "\n\n")

	if m.snapshot == nil {
		b.WriteString("loading...\n")
		return b.String()
	}

	b.WriteString(m.styles.Header.Render(fmt.Sprintf("  %-4s %-30s %-10s %-12s %s", "ID", "TASK", "STATUS", "+/-", "AHEAD")) + "\n")
	for i, t := range m.snapshot.Tasks {
		meta := domain.TaskMeta{ID: t.ID, Slug: t.Slug}
		diff, ahead := "-", "-"
		if metrics, ok := m.snapshot.MetricsFor(meta); ok {
			diff = fmt.Sprintf("+%d/-%d", metrics.UncommittedAdd, metrics.UncommittedDel)
			ahead = fmt.Sprintf("%d", metrics.CommitsAhead)
		}
		line := fmt.Sprintf("%-4d %-30s %-10s %-12s %s",
			t.ID, truncateTo(t.Slug, 30), m.styles.Status(t.Status).Render(t.Status.Display()), diff, ahead)
		if i == m.cursor {
			b.WriteString(m.styles.Selected.Render("> "+line) + "\n")
		} else {
			b.WriteString(m.styles.Row.Render("  "+line) + "\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n" + m.styles.Err.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + m.styles.Help.Render("↑/↓ select · enter attach · q quit") + "\n")
	return b.String()
}

func truncateTo(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
