package cli

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/agentry-dev/agentry/internal/tui"
)

// newTuiCommand creates the tui command launching the dashboard.
func newTuiCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:     "tui",
		Short:   "Open the live task dashboard",
		GroupID: groupSession,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := repoContainer(cmd, version, true)
			if err != nil {
				return err
			}

			pid := os.Getpid()
			tuiID, err := c.Client.TuiRegister(c.Project, pid)
			if err != nil {
				return err
			}
			// The daemon also sweeps dead registrations, but a clean
			// exit should not leave a stale entry for up to a sweep.
			defer func() {
				_ = c.Client.TuiUnregister(c.Project, pid)
			}()

			sub, err := c.Client.Subscribe(c.Project)
			if err != nil {
				return err
			}
			defer sub.Close()

			model := tui.New(c.Client, sub, c.Project, tuiID, c.TmuxSocketPath)
			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}
}
