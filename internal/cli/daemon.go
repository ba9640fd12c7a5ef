package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentry-dev/agentry/internal/app"
	"github.com/agentry-dev/agentry/internal/daemon/client"
	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/infra/config"
)

// newDaemonCommand creates the daemon command group.
func newDaemonCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Manage the orchestration daemon",
		GroupID: groupDaemon,
	}
	cmd.AddCommand(
		newDaemonRunCommand(version),
		newDaemonStartCommand(version),
		newDaemonStopCommand(),
		newDaemonStatusCommand(),
	)
	return cmd
}

// daemonClient builds a client from the global (non-repo) config.
func daemonClient() (*client.Client, error) {
	cfg, err := config.NewLoader("").Load()
	if err != nil {
		return nil, err
	}
	socketPath, err := config.ResolveSocketPath(cfg)
	if err != nil {
		return nil, err
	}
	return client.New(socketPath), nil
}

// newDaemonRunCommand runs the daemon in the foreground. This is what
// the autostart spawns, detached.
func newDaemonRunCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, closer, err := app.BuildDaemon(version)
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := srv.Listen(); err != nil {
				if errors.Is(err, domain.ErrDaemonRunning) {
					// Lost the bind race to another instance; that
					// instance serves, we bow out cleanly.
					return nil
				}
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sig
				srv.Stop()
			}()
			return srv.Run()
		},
	}
}

// newDaemonStartCommand starts the daemon in the background.
func newDaemonStartCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := daemonClient()
			if err != nil {
				return err
			}
			if err := cli.EnsureRunning(cmd.Context(), version); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "daemon running")
			return nil
		},
	}
}

// newDaemonStopCommand stops the daemon.
func newDaemonStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := daemonClient()
			if err != nil {
				return err
			}
			if err := cli.Shutdown(); err != nil {
				if errors.Is(err, domain.ErrDaemonNotRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), "daemon not running")
					return nil
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "daemon stopped")
			return nil
		},
	}
}

// newDaemonStatusCommand reports daemon liveness and version.
func newDaemonStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := daemonClient()
			if err != nil {
				return err
			}
			v, err := cli.Version()
			if err != nil {
				if errors.Is(err, domain.ErrDaemonNotRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), "daemon not running")
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon running (version %s)\n", v)
			return nil
		},
	}
}
