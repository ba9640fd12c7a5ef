// Package cli provides the command-line interface for agentry.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentry-dev/agentry/internal/app"
)

// Command group IDs.
const (
	groupTask    = "task"
	groupSession = "session"
	groupDaemon  = "daemon"
)

// newContainer builds the repository-scoped container from the current
// working directory. Declared as a variable so tests can substitute a
// fake container.
var newContainer = func() (*app.Container, error) {
	return app.New(".")
}

// NewRootCommand creates the root command for agentry.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentry",
		Short: "Parallel AI agent session orchestrator",
		Long: `agentry runs long-lived CLI agents in parallel, one task per
git worktree and tmux session, with a background daemon that tracks
session liveness, derives task status and streams state to dashboards.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddGroup(
		&cobra.Group{ID: groupTask, Title: "Task Commands:"},
		&cobra.Group{ID: groupSession, Title: "Session Commands:"},
		&cobra.Group{ID: groupDaemon, Title: "Daemon Commands:"},
	)

	root.AddCommand(
		newNewCommand(),
		newTasksCommand(version),
		newStartCommand(version),
		newStopCommand(version),
		newCompleteCommand(version),
		newRemoveCommand(version),
		newAttachCommand(),
		newPsCommand(version),
		newNotifyCommand(version),
		newTuiCommand(version),
		newFollowCommand(version),
		newDaemonCommand(version),
	)
	return root
}
