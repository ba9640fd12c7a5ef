// Package app provides the dependency injection container for the
// application.
package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/agentry-dev/agentry/internal/daemon"
	"github.com/agentry-dev/agentry/internal/daemon/client"
	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/infra/config"
	"github.com/agentry-dev/agentry/internal/infra/git"
	"github.com/agentry-dev/agentry/internal/infra/logging"
	"github.com/agentry-dev/agentry/internal/infra/taskfile"
	"github.com/agentry-dev/agentry/internal/infra/tmux"
	"github.com/agentry-dev/agentry/internal/infra/worktree"
	"github.com/agentry-dev/agentry/internal/usecase"
)

// Container provides dependency injection for repository-scoped
// commands.
type Container struct {
	Tasks        domain.TaskStore
	Worktrees    domain.WorktreeManager
	Sessions     domain.SessionManager
	Gateway      domain.DaemonGateway
	ConfigLoader domain.ConfigLoader
	Clock        domain.Clock

	Client *client.Client
	Logger *slog.Logger
	Config *domain.Config

	Project        domain.ProjectKey
	SocketPath     string
	TmuxSocketPath string
}

// New creates a Container by detecting the git repository from the
// given directory.
func New(dir string) (*Container, error) {
	repoRoot, err := git.FindRepoRoot(dir)
	if err != nil {
		return nil, err
	}

	loader := config.NewLoader(repoRoot)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	socketPath, err := config.ResolveSocketPath(cfg)
	if err != nil {
		return nil, err
	}
	tmuxSocketPath, err := config.ResolveTmuxSocketPath(cfg)
	if err != nil {
		return nil, err
	}

	cli := client.New(socketPath)
	return &Container{
		Tasks:          taskfile.New(repoRoot),
		Worktrees:      worktree.NewClient(repoRoot),
		Sessions:       tmux.NewClient(tmuxSocketPath),
		Gateway:        client.NewGateway(cli),
		ConfigLoader:   loader,
		Clock:          domain.RealClock{},
		Client:         cli,
		Logger:         logging.NewStderr(logging.ParseLevel(cfg.Log.Level)),
		Config:         cfg,
		Project:        domain.ProjectKey{RepoRoot: repoRoot},
		SocketPath:     socketPath,
		TmuxSocketPath: tmuxSocketPath,
	}, nil
}

// EnsureDaemon makes sure a daemon of the running binary's version is
// serving the control socket, autostarting one when allowed.
func (c *Container) EnsureDaemon(ctx context.Context, version string) error {
	return c.Client.EnsureRunning(ctx, version)
}

// Use case factories.

func (c *Container) NewTask() *usecase.NewTask {
	return usecase.NewNewTask(c.Tasks, c.Gateway, c.Project)
}

func (c *Container) StartTask() *usecase.StartTask {
	return usecase.NewStartTask(c.Tasks, c.Worktrees, c.Gateway, c.Config, c.Project, func() (string, error) {
		return git.HeadBranch(c.Project.RepoRoot)
	})
}

func (c *Container) StopTask() *usecase.StopTask {
	return usecase.NewStopTask(c.Tasks, c.Gateway, c.Project)
}

func (c *Container) CompleteTask() *usecase.CompleteTask {
	return usecase.NewCompleteTask(c.Tasks, c.Gateway, c.Project)
}

func (c *Container) RemoveTask() *usecase.RemoveTask {
	return usecase.NewRemoveTask(c.Tasks, c.Worktrees, c.Gateway, c.Project)
}

func (c *Container) ListTasks() *usecase.ListTasks {
	return usecase.NewListTasks(c.Gateway, c.Project)
}

func (c *Container) AttachSession() *usecase.AttachSession {
	return usecase.NewAttachSession(c.Tasks, c.Sessions)
}

func (c *Container) Follow(run usecase.AttachFunc) *usecase.Follow {
	return usecase.NewFollow(c.Tasks, run)
}

// BuildDaemon wires the daemon server. It is repository-independent:
// one daemon serves every project that talks to it. The returned
// closer owns the log file.
func BuildDaemon(version string) (*daemon.Server, io.Closer, error) {
	loader := config.NewLoader("")
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	socketPath, err := config.ResolveSocketPath(cfg)
	if err != nil {
		return nil, nil, err
	}
	tmuxSocketPath, err := config.ResolveTmuxSocketPath(cfg)
	if err != nil {
		return nil, nil, err
	}
	logPath, err := logging.DaemonLogPath()
	if err != nil {
		return nil, nil, err
	}
	log, closer, err := logging.NewFile(logPath, logging.ParseLevel(cfg.Log.Level))
	if err != nil {
		return nil, nil, err
	}

	clock := domain.RealClock{}
	sessions := tmux.NewClient(tmuxSocketPath)
	builder := daemon.NewSnapshotBuilder(
		sessions,
		func(repoRoot string) domain.TaskStore { return taskfile.New(repoRoot) },
		func(repoRoot string) domain.MetricsEngine { return git.NewMetrics(repoRoot, clock) },
		func(repoRoot string) domain.WorktreeManager { return worktree.NewClient(repoRoot) },
		clock,
		cfg.IdleThreshold(),
		log,
	)
	registry := daemon.NewTuiRegistry(clock, nil)
	srv := daemon.NewServer(cfg, version, socketPath, sessions, builder, registry, log)
	return srv, closer, nil
}
