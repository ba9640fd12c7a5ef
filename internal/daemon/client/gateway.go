package client

import (
	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/protocol"
)

// Gateway adapts Client to the domain.DaemonGateway port.
type Gateway struct {
	c *Client
}

// NewGateway wraps a client as a daemon gateway.
func NewGateway(c *Client) *Gateway {
	return &Gateway{c: c}
}

// Ensure Gateway implements domain.DaemonGateway.
var _ domain.DaemonGateway = (*Gateway)(nil)

func (g *Gateway) StartSession(project domain.ProjectKey, task domain.TaskMeta, command, dir string, env map[string]string) error {
	return g.c.StartSession(protocol.StartSession{
		Project: project,
		Task:    task,
		Command: command,
		Dir:     dir,
		Env:     env,
	})
}

func (g *Gateway) StopTask(project domain.ProjectKey, task domain.TaskMeta) (int, error) {
	return g.c.StopTask(project, task)
}

func (g *Gateway) StopSession(sessionID int64) (int, error) {
	return g.c.StopSession(sessionID)
}

func (g *Gateway) Snapshot(project domain.ProjectKey) (*domain.Snapshot, error) {
	return g.c.Snapshot(project)
}

func (g *Gateway) NotifyChanged(project domain.ProjectKey) error {
	return g.c.NotifyChanged(project)
}
