package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/agentry-dev/agentry/internal/daemon/client"
	"github.com/agentry-dev/agentry/internal/domain"
)

// followSource adapts a follow stream to the use case's focus source.
type followSource struct {
	stream *client.FollowStream
}

func (f *followSource) Next() (int, error) {
	msg, err := f.stream.Next()
	if err != nil {
		return 0, err
	}
	return msg.TaskID, nil
}

// newFollowCommand creates the follow command: a second terminal that
// mirrors a dashboard's focused task by attaching to its session.
func newFollowCommand(version string) *cobra.Command {
	var tuiID int

	cmd := &cobra.Command{
		Use:     "follow",
		Short:   "Mirror a dashboard's focused task in this terminal",
		GroupID: groupSession,
		Long: `Follow a running dashboard: whenever its selection moves to another
task, this terminal re-attaches to that task's session.

With a single open dashboard no id is needed; with several, pass --tui.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := repoContainer(cmd, version, true)
			if err != nil {
				return err
			}
			stream, err := c.Client.Follow(c.Project, tuiID)
			if err != nil {
				return err
			}
			defer stream.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Following TUI %d (detach with C-c)\n", stream.TuiID)

			follow := c.Follow(attachChild(c.TmuxSocketPath))
			err = follow.Execute(cmd.Context(), &followSource{stream: stream})
			if errors.Is(err, domain.ErrFollowStopped) {
				fmt.Fprintln(cmd.OutOrStdout(), "Followed TUI closed")
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVar(&tuiID, "tui", 0, "Dashboard id to follow (0 auto-selects a sole dashboard)")
	return cmd
}

// attachChild returns an attach function that runs the multiplexer
// client as a child process, so the follow loop can kill and respawn
// it on focus changes.
func attachChild(tmuxSocketPath string) func(ctx context.Context, sessionName string) error {
	return func(ctx context.Context, sessionName string) error {
		check := exec.CommandContext(ctx, "tmux", "-S", tmuxSocketPath, "has-session", "-t", sessionName)
		check.Env = withoutTmuxEnv(os.Environ())
		if check.Run() != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Focused task has no session yet; hold this terminal until
			// the focus moves somewhere attachable.
			fmt.Printf("No session for %s yet, waiting for the next focus change...\n", sessionName)
			<-ctx.Done()
			return nil
		}

		cmd := exec.CommandContext(ctx, "tmux", "-S", tmuxSocketPath, "attach", "-t", sessionName)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = withoutTmuxEnv(os.Environ())
		err := cmd.Run()
		if ctx.Err() != nil {
			// Killed by a focus change, not a real failure.
			return nil
		}
		return err
	}
}

func withoutTmuxEnv(env []string) []string {
	out := env[:0:0]
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "TMUX=" {
			continue
		}
		out = append(out, kv)
	}
	return out
}
