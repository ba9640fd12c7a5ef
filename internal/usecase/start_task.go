package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/agentry-dev/agentry/internal/domain"
)

// StartTaskInput contains the parameters for starting a task's agent
// session.
type StartTaskInput struct {
	TaskID int
	Agent  string // overrides the task's agent when set
}

// StartTaskOutput contains the result of starting a task.
type StartTaskOutput struct {
	Task         *domain.Task
	WorktreePath string
	SessionName  string
}

// StartTask is the use case for starting an agent session in a task's
// worktree. The worktree and branch are created on first start; the
// actual session spawn happens in the daemon so the session outlives
// the CLI invocation.
type StartTask struct {
	tasks      domain.TaskStore
	worktrees  domain.WorktreeManager
	gateway    domain.DaemonGateway
	config     *domain.Config
	project    domain.ProjectKey
	headBranch func() (string, error)
}

// NewStartTask creates a new StartTask use case. headBranch resolves
// the repository's current branch for tasks without an explicit base.
func NewStartTask(
	tasks domain.TaskStore,
	worktrees domain.WorktreeManager,
	gateway domain.DaemonGateway,
	config *domain.Config,
	project domain.ProjectKey,
	headBranch func() (string, error),
) *StartTask {
	return &StartTask{
		tasks:      tasks,
		worktrees:  worktrees,
		gateway:    gateway,
		config:     config,
		project:    project,
		headBranch: headBranch,
	}
}

// Execute starts the task:
// 1. Ensures the branch and worktree exist
// 2. Resolves the agent command
// 3. Clears a stale completion marker (restart means not done)
// 4. Asks the daemon to spawn the detached session
func (uc *StartTask) Execute(_ context.Context, in StartTaskInput) (*StartTaskOutput, error) {
	task, err := uc.tasks.Get(in.TaskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	meta := task.Meta()

	base := task.BaseBranch
	if base == "" {
		base, err = uc.headBranch()
		if err != nil {
			return nil, fmt.Errorf("resolve base branch: %w", err)
		}
	}
	wtPath, err := uc.worktrees.Ensure(meta, base)
	if err != nil {
		return nil, fmt.Errorf("ensure worktree: %w", err)
	}

	agentName := task.Agent
	if in.Agent != "" {
		agentName = in.Agent
	}
	agent, err := uc.config.ResolveAgent(agentName)
	if err != nil {
		return nil, err
	}

	if err := uc.tasks.ClearCompleted(meta); err != nil {
		return nil, fmt.Errorf("clear completion marker: %w", err)
	}

	command := agent.Command
	if len(agent.Args) > 0 {
		command += " " + strings.Join(agent.Args, " ")
	}
	env := map[string]string{
		"AGENTRY_TASK":    domain.TaskFilePath(uc.project.RepoRoot, meta),
		"AGENTRY_TASK_ID": strconv.Itoa(task.ID),
		"AGENTRY_ROOT":    uc.project.RepoRoot,
	}
	if err := uc.gateway.StartSession(uc.project, meta, command, wtPath, env); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	return &StartTaskOutput{
		Task:         task,
		WorktreePath: wtPath,
		SessionName:  domain.SessionName(meta),
	}, nil
}
