package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentry-dev/agentry/internal/app"
	"github.com/agentry-dev/agentry/internal/usecase"
)

// repoContainer builds the container and optionally autostarts the
// daemon. Repo commands share this preamble.
func repoContainer(cmd *cobra.Command, version string, needDaemon bool) (*app.Container, error) {
	c, err := newContainer()
	if err != nil {
		return nil, err
	}
	if needDaemon {
		if err := c.EnsureDaemon(cmd.Context(), version); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func parseTaskID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id: %s", arg)
	}
	return id, nil
}

// newNewCommand creates the new command for creating tasks.
func newNewCommand() *cobra.Command {
	var opts struct {
		Description string
		Base        string
		Agent       string
	}

	cmd := &cobra.Command{
		Use:     "new <title>",
		Short:   "Create a new task",
		GroupID: groupTask,
		Long: `Create a new task file under .agentry/tasks.

The worktree and branch are not created until the task is started
with 'agentry start <id>'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := repoContainer(cmd, "", false)
			if err != nil {
				return err
			}
			out, err := c.NewTask().Execute(cmd.Context(), usecase.NewTaskInput{
				Title:       args[0],
				Description: opts.Description,
				BaseBranch:  opts.Base,
				Agent:       opts.Agent,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task #%d (%s)\n", out.Task.ID, out.Task.Slug)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Description, "body", "b", "", "Task description (markdown)")
	cmd.Flags().StringVar(&opts.Base, "base", "", "Base branch (default: current branch at start)")
	cmd.Flags().StringVar(&opts.Agent, "agent", "", "Agent to run (default: configured default agent)")
	return cmd
}

// newTasksCommand creates the tasks listing command.
func newTasksCommand(version string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "tasks",
		Short:   "List tasks with derived status and live metrics",
		GroupID: groupTask,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := repoContainer(cmd, version, true)
			if err != nil {
				return err
			}
			out, err := c.ListTasks().Execute(cmd.Context(), usecase.ListTasksInput{All: all})
			if err != nil {
				return err
			}
			printTaskRows(cmd, out.Rows)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include completed tasks")
	return cmd
}

func printTaskRows(cmd *cobra.Command, rows []usecase.TaskRow) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tSTATUS\tAGENT\t+/-\tAHEAD")
	for _, row := range rows {
		diff, ahead := "-", "-"
		if row.Metrics != nil {
			diff = fmt.Sprintf("+%d/-%d", row.Metrics.UncommittedAdd, row.Metrics.UncommittedDel)
			ahead = strconv.Itoa(row.Metrics.CommitsAhead)
		}
		agent := row.Task.Agent
		if agent == "" {
			agent = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			row.Task.ID, row.Task.Slug, row.Task.Status.Display(), agent, diff, ahead)
	}
	_ = w.Flush()
}

// newStartCommand creates the start command.
func newStartCommand(version string) *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:     "start <id>",
		Short:   "Start a task's agent session in its worktree",
		GroupID: groupTask,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			c, err := repoContainer(cmd, version, true)
			if err != nil {
				return err
			}
			out, err := c.StartTask().Execute(cmd.Context(), usecase.StartTaskInput{TaskID: id, Agent: agent})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s in %s\n", out.SessionName, out.WorktreePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "Agent to run (overrides the task's agent)")
	return cmd
}

// newStopCommand creates the stop command.
func newStopCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:     "stop <id>",
		Short:   "Stop a task's sessions, keeping its worktree",
		GroupID: groupTask,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			c, err := repoContainer(cmd, version, true)
			if err != nil {
				return err
			}
			out, err := c.StopTask().Execute(cmd.Context(), usecase.StopTaskInput{TaskID: id})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped %d session(s) of task #%d\n", out.Stopped, out.Task.ID)
			return nil
		},
	}
}

// newCompleteCommand creates the complete command.
func newCompleteCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:     "complete <id>",
		Short:   "Mark a task completed and stop its sessions",
		GroupID: groupTask,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			c, err := repoContainer(cmd, version, true)
			if err != nil {
				return err
			}
			out, err := c.CompleteTask().Execute(cmd.Context(), usecase.CompleteTaskInput{TaskID: id})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed task #%d (%s)\n", out.Task.ID, out.Task.Slug)
			return nil
		},
	}
}

// newRemoveCommand creates the rm command.
func newRemoveCommand(version string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "rm <id>",
		Short:   "Remove a task, its worktree and its branch",
		GroupID: groupTask,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			c, err := repoContainer(cmd, version, true)
			if err != nil {
				return err
			}
			out, err := c.RemoveTask().Execute(cmd.Context(), usecase.RemoveTaskInput{TaskID: id, Force: force})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed task #%d (%s)\n", out.Task.ID, out.Task.Slug)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Discard uncommitted worktree changes")
	return cmd
}

// newNotifyCommand creates the notify command, used by hooks and agents
// to trigger an immediate state broadcast.
func newNotifyCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:     "notify",
		Short:   "Ask the daemon to recompute and broadcast project state now",
		GroupID: groupDaemon,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := repoContainer(cmd, version, true)
			if err != nil {
				return err
			}
			return c.Gateway.NotifyChanged(c.Project)
		},
	}
}
