package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentry-dev/agentry/internal/usecase"
)

// newAttachCommand creates the attach command.
func newAttachCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "attach <id>",
		Short:   "Attach the terminal to a task's session",
		GroupID: groupSession,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			c, err := repoContainer(cmd, "", false)
			if err != nil {
				return err
			}
			// Replaces the process on success.
			return c.AttachSession().Execute(cmd.Context(), usecase.AttachSessionInput{TaskID: id})
		},
	}
}

// newPsCommand creates the ps command listing live sessions.
func newPsCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:     "ps",
		Short:   "List live agent sessions",
		GroupID: groupSession,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := repoContainer(cmd, version, true)
			if err != nil {
				return err
			}
			snap, err := c.Gateway.Snapshot(c.Project)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tTASK\tCLIENTS\tLAST ACTIVITY\tPANE")
			for _, s := range snap.Sessions {
				pane := "alive"
				if s.PaneDead {
					pane = "dead"
				}
				age := time.Since(time.UnixMilli(s.LastActivityMS)).Round(time.Second)
				fmt.Fprintf(w, "%s\t#%d %s\t%d\t%s ago\t%s\n",
					s.Name, s.Task.ID, s.Task.Slug, s.Clients, age, pane)
			}
			return w.Flush()
		},
	}
}
