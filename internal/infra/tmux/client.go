// Package tmux implements the session adapter on a dedicated tmux
// server, isolated from any tmux the invoking shell is inside.
package tmux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/agentry-dev/agentry/internal/domain"
)

// ExecFunc is the function signature for syscall.Exec.
// It is used to allow testing of the Attach method.
type ExecFunc func(argv0 string, argv []string, envv []string) error

// RunFunc executes one tmux command and returns its stdout. Injectable
// so tests can record invocations without a tmux server.
type RunFunc func(ctx context.Context, args ...string) (string, error)

// rootOption tags sessions with the project they belong to, so one
// tmux server can host sessions for many repositories.
const rootOption = "@agentry_root"

// Client manages agent sessions on a dedicated tmux socket.
type Client struct {
	execFunc   ExecFunc
	run        RunFunc
	socketPath string
}

// NewClient creates a tmux client bound to the given socket path.
func NewClient(socketPath string) *Client {
	c := &Client{
		socketPath: socketPath,
		execFunc:   syscall.Exec,
	}
	c.run = c.runTmux
	return c
}

// SetExecFunc sets the exec function for testing purposes.
func (c *Client) SetExecFunc(fn ExecFunc) {
	c.execFunc = fn
}

// SetRunFunc sets the tmux command runner for testing purposes.
func (c *Client) SetRunFunc(fn RunFunc) {
	c.run = fn
}

// Ensure Client implements domain.SessionManager interface.
var _ domain.SessionManager = (*Client)(nil)

// runTmux runs tmux against the dedicated socket. TMUX is stripped
// from the environment so nesting inside an ambient tmux works.
func (c *Client) runTmux(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-S", c.socketPath}, args...)
	cmd := exec.CommandContext(ctx, "tmux", full...)
	cmd.Env = envWithoutTmux(os.Environ())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
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

// Start creates a detached session for a task. The pane survives its
// process exiting (remain-on-exit) so the final output stays visible,
// and pane output is piped to the per-session activity stamp.
func (c *Client) Start(ctx context.Context, opts domain.StartSessionOptions) error {
	name := domain.SessionName(opts.Task)

	running, err := c.isRunning(ctx, name)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if running {
		return domain.ErrSessionRunning
	}

	stamp := domain.ActivityStampPath(opts.RepoRoot, name)
	if err := os.MkdirAll(filepath.Dir(stamp), 0o755); err != nil {
		return fmt.Errorf("create activity dir: %w", err)
	}
	if err := os.WriteFile(stamp, nil, 0o644); err != nil {
		return fmt.Errorf("create activity stamp: %w", err)
	}

	// tmux -S <socket> new-session -d -s <name> -c <dir> [-e K=V ...] <command>
	args := []string{
		"new-session",
		"-d",
		"-s", name,
		"-c", opts.Dir,
	}
	for _, k := range sortedKeys(opts.Env) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	if opts.Command != "" {
		args = append(args, opts.Command)
	}
	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	setup := [][]string{
		{"set-option", "-t", name, rootOption, opts.RepoRoot},
		{"set-option", "-t", name, "remain-on-exit", "on"},
		// Every chunk of pane output refreshes the stamp's mtime.
		{"pipe-pane", "-t", name, "-o",
			fmt.Sprintf("while IFS= read -r _; do touch %q; done", stamp)},
	}
	for _, sa := range setup {
		if _, err := c.run(ctx, sa...); err != nil {
			// Session exists but is half-configured; tear it down.
			_, _ = c.run(ctx, "kill-session", "-t", name)
			return fmt.Errorf("configure session: %w", err)
		}
	}
	return nil
}

// Attach replaces the current process with tmux attached to a session.
func (c *Client) Attach(sessionName string) error {
	running, err := c.isRunning(context.Background(), sessionName)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !running {
		return domain.ErrNoSession
	}

	tmuxPath, err := exec.LookPath("tmux")
	if err != nil {
		return fmt.Errorf("find tmux: %w", err)
	}
	argv := []string{"tmux", "-S", c.socketPath, "attach", "-t", sessionName}
	if err := c.execFunc(tmuxPath, argv, envWithoutTmux(os.Environ())); err != nil {
		return fmt.Errorf("attach session: %w", err)
	}
	// Not reached when exec succeeds.
	return nil
}

// Kill terminates a session and removes its activity stamp. A session
// that is already gone is not an error.
func (c *Client) Kill(repoRoot, sessionName string) error {
	ctx := context.Background()
	running, err := c.isRunning(ctx, sessionName)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if running {
		if _, err := c.run(ctx, "kill-session", "-t", sessionName); err != nil {
			still, checkErr := c.isRunning(ctx, sessionName)
			if checkErr != nil || still {
				return fmt.Errorf("kill session: %w", err)
			}
		}
	}
	stamp := domain.ActivityStampPath(repoRoot, sessionName)
	if err := os.Remove(stamp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove activity stamp: %w", err)
	}
	return nil
}

// List returns raw facts about the project's live sessions. A missing
// tmux server means no sessions, not an error.
func (c *Client) List(repoRoot string) ([]domain.SessionInfo, error) {
	ctx := context.Background()
	out, err := c.run(ctx,
		"list-sessions",
		"-F", "#{session_name}\t#{session_id}\t#{session_created}\t#{session_attached}\t#{"+rootOption+"}",
	)
	if err != nil {
		// No server on the socket yet.
		return nil, nil
	}

	var infos []domain.SessionInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 5 || fields[4] != repoRoot {
			continue
		}
		task, ok := domain.ParseSessionName(fields[0])
		if !ok {
			continue
		}
		sessionID, err := strconv.ParseInt(strings.TrimPrefix(fields[1], "$"), 10, 64)
		if err != nil {
			continue
		}
		createdSecs, _ := strconv.ParseInt(fields[2], 10, 64)
		clients, _ := strconv.Atoi(fields[3])

		info := domain.SessionInfo{
			Name:           fields[0],
			Task:           task,
			SessionID:      sessionID,
			CreatedAtMS:    createdSecs * 1000,
			LastActivityMS: createdSecs * 1000,
			Clients:        clients,
			PaneDead:       c.paneDead(ctx, fields[0]),
		}
		if st, err := os.Stat(domain.ActivityStampPath(repoRoot, fields[0])); err == nil {
			info.LastActivityMS = st.ModTime().UnixMilli()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// paneDead reports whether any pane in the session is dead. With
// remain-on-exit the pane outlives its process; a dead pane is how an
// exited agent shows up.
func (c *Client) paneDead(ctx context.Context, sessionName string) bool {
	out, err := c.run(ctx, "list-panes", "-t", sessionName, "-F", "#{pane_dead}")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "1" {
			return true
		}
	}
	return false
}

func (c *Client) isRunning(ctx context.Context, sessionName string) (bool, error) {
	_, err := c.run(ctx, "has-session", "-t", sessionName)
	if err != nil {
		// Exit code 1 or no server both mean the session does not exist.
		return false, nil
	}
	return true, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
