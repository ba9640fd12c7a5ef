// Package client is the caller side of the daemon control protocol:
// one-shot requests, snapshot subscriptions, follow streams, and the
// autostart handshake CLI commands go through.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/protocol"
)

const (
	dialTimeout = 250 * time.Millisecond

	// probeTimeout bounds the liveness and version probes, so checks
	// against a wedged-but-bound daemon fail instead of hanging.
	probeTimeout = 250 * time.Millisecond

	// requestTimeout bounds ordinary one-shot exchanges. Snapshot and
	// session requests may shell out to git or tmux daemon-side, so
	// this is far looser than the probe deadline.
	requestTimeout = 10 * time.Second

	// autostart waits this long for a freshly spawned daemon to bind
	// its socket before giving up.
	startupWait = 3 * time.Second
	startupStep = 50 * time.Millisecond
)

// Client talks to the daemon over its control socket. One-shot calls
// open a fresh connection each; Subscribe and Follow hand back stream
// handles that own theirs.
type Client struct {
	socketPath string
}

func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return nil, domain.ErrDaemonNotRunning
	}
	return conn, nil
}

// roundTrip performs one request/response exchange on a fresh
// connection, bounded by the given deadline. A typed Error reply
// becomes a Go error.
func (c *Client) roundTrip(msg protocol.ClientMessage, timeout time.Duration) (protocol.ServerMessage, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if err := protocol.WriteClient(conn, msg); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	reply, err := protocol.ReadServer(conn)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if e, ok := reply.(protocol.Error); ok {
		return nil, errors.New(e.Message)
	}
	return reply, nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	nonce := uint64(time.Now().UnixNano())
	reply, err := c.roundTrip(protocol.Ping{Nonce: nonce}, probeTimeout)
	if err != nil {
		return err
	}
	pong, ok := reply.(protocol.Pong)
	if !ok || pong.Nonce != nonce {
		return domain.ErrProtocol
	}
	return nil
}

// Version returns the running daemon's version string.
func (c *Client) Version() (string, error) {
	reply, err := c.roundTrip(protocol.GetVersion{}, probeTimeout)
	if err != nil {
		return "", err
	}
	v, ok := reply.(protocol.Version)
	if !ok {
		return "", domain.ErrProtocol
	}
	return v.Version, nil
}

// Shutdown asks the daemon to terminate and waits for its goodbye.
func (c *Client) Shutdown() error {
	reply, err := c.roundTrip(protocol.Shutdown{}, requestTimeout)
	if err != nil {
		return err
	}
	if _, ok := reply.(protocol.Goodbye); !ok {
		return domain.ErrProtocol
	}
	return nil
}

// Snapshot fetches a one-shot composite snapshot for a project.
func (c *Client) Snapshot(project domain.ProjectKey) (*domain.Snapshot, error) {
	reply, err := c.roundTrip(protocol.GetSnapshot{Project: project}, requestTimeout)
	if err != nil {
		return nil, err
	}
	push, ok := reply.(protocol.SnapshotPush)
	if !ok {
		return nil, domain.ErrProtocol
	}
	return &push.Snapshot, nil
}

// NotifyChanged asks the daemon to recompute and broadcast now.
func (c *Client) NotifyChanged(project domain.ProjectKey) error {
	return c.expectAck(protocol.NotifyChanged{Project: project})
}

// StartSession asks the daemon to spawn a detached agent session.
func (c *Client) StartSession(msg protocol.StartSession) error {
	return c.expectAck(msg)
}

// StopTask terminates every session bound to a task and reports how
// many were stopped.
func (c *Client) StopTask(project domain.ProjectKey, task domain.TaskMeta) (int, error) {
	reply, err := c.roundTrip(protocol.StopTask{Project: project, Task: task}, requestTimeout)
	if err != nil {
		return 0, err
	}
	ack, ok := reply.(protocol.Ack)
	if !ok {
		return 0, domain.ErrProtocol
	}
	return ack.Stopped, nil
}

// StopSession terminates one session addressed by multiplexer id.
func (c *Client) StopSession(sessionID int64) (int, error) {
	reply, err := c.roundTrip(protocol.StopSession{SessionID: sessionID}, requestTimeout)
	if err != nil {
		return 0, err
	}
	ack, ok := reply.(protocol.Ack)
	if !ok {
		return 0, domain.ErrProtocol
	}
	return ack.Stopped, nil
}

// TuiRegister registers a dashboard and returns its assigned id.
func (c *Client) TuiRegister(project domain.ProjectKey, pid int) (int, error) {
	reply, err := c.roundTrip(protocol.TuiRegister{Project: project, PID: pid}, requestTimeout)
	if err != nil {
		return 0, err
	}
	reg, ok := reply.(protocol.TuiRegistered)
	if !ok {
		return 0, domain.ErrProtocol
	}
	return reg.TuiID, nil
}

// TuiUnregister removes a dashboard registration.
func (c *Client) TuiUnregister(project domain.ProjectKey, pid int) error {
	return c.expectAck(protocol.TuiUnregister{Project: project, PID: pid})
}

// TuiFocusChange reports a dashboard's new selection.
func (c *Client) TuiFocusChange(project domain.ProjectKey, tuiID, taskID int) error {
	return c.expectAck(protocol.TuiFocusChange{Project: project, TuiID: tuiID, TaskID: taskID})
}

// TuiList enumerates open dashboards for a project.
func (c *Client) TuiList(project domain.ProjectKey) ([]protocol.TuiInfo, error) {
	reply, err := c.roundTrip(protocol.TuiList{Project: project}, requestTimeout)
	if err != nil {
		return nil, err
	}
	list, ok := reply.(protocol.TuiListReply)
	if !ok {
		return nil, domain.ErrProtocol
	}
	return list.Items, nil
}

func (c *Client) expectAck(msg protocol.ClientMessage) error {
	reply, err := c.roundTrip(msg, requestTimeout)
	if err != nil {
		return err
	}
	if _, ok := reply.(protocol.Ack); !ok {
		return domain.ErrProtocol
	}
	return nil
}

// Subscription is a live snapshot stream for one project.
type Subscription struct {
	conn net.Conn
}

// Subscribe opens a snapshot stream. The first Next returns the
// current snapshot immediately.
func (c *Client) Subscribe(project domain.ProjectKey) (*Subscription, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteClient(conn, protocol.Subscribe{Project: project}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}
	return &Subscription{conn: conn}, nil
}

// Next blocks until the daemon pushes the next snapshot.
func (s *Subscription) Next() (*domain.Snapshot, error) {
	reply, err := protocol.ReadServer(s.conn)
	if err != nil {
		return nil, err
	}
	switch m := reply.(type) {
	case protocol.SnapshotPush:
		return &m.Snapshot, nil
	case protocol.Error:
		return nil, errors.New(m.Message)
	default:
		return nil, domain.ErrProtocol
	}
}

func (s *Subscription) Close() error { return s.conn.Close() }

// FollowStream delivers focus events from a followed dashboard.
type FollowStream struct {
	conn  net.Conn
	TuiID int
}

// Follow starts following a dashboard's focus. tuiID 0 auto-selects
// when exactly one dashboard is registered for the project.
func (c *Client) Follow(project domain.ProjectKey, tuiID int) (*FollowStream, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteClient(conn, protocol.TuiFollow{Project: project, TuiID: tuiID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send follow: %w", err)
	}
	reply, err := protocol.ReadServer(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	switch m := reply.(type) {
	case protocol.TuiFollowSucceeded:
		return &FollowStream{conn: conn, TuiID: m.TuiID}, nil
	case protocol.TuiFollowFailed:
		conn.Close()
		return nil, errors.New(m.Message)
	default:
		conn.Close()
		return nil, domain.ErrProtocol
	}
}

// Next blocks until the followed dashboard's focus moves. It returns
// ErrFollowStopped when the target deregisters or is swept.
func (f *FollowStream) Next() (*protocol.TuiFocusChanged, error) {
	reply, err := protocol.ReadServer(f.conn)
	if err != nil {
		return nil, err
	}
	switch m := reply.(type) {
	case protocol.TuiFocusChanged:
		return &m, nil
	case protocol.TuiFollowStopped:
		return nil, domain.ErrFollowStopped
	case protocol.Error:
		return nil, errors.New(m.Message)
	default:
		return nil, domain.ErrProtocol
	}
}

func (f *FollowStream) Close() error { return f.conn.Close() }

// EnsureRunning makes sure a daemon of the wanted version is serving
// the socket, spawning or replacing one as needed. Setting
// AGENTRY_NO_AUTOSTART=1 turns the autostart off, in which case a
// missing daemon is an error.
func (c *Client) EnsureRunning(ctx context.Context, version string) error {
	running, err := c.probeVersion()
	if err != nil {
		return err
	}
	if running == version {
		return nil
	}
	if os.Getenv("AGENTRY_NO_AUTOSTART") == "1" {
		if running == "" {
			return domain.ErrDaemonNotRunning
		}
		return fmt.Errorf("%w: daemon %s, client %s", domain.ErrVersionMismatch, running, version)
	}

	// A stale-version daemon is replaced, not tolerated: the protocol
	// is not cross-version stable.
	if running != "" {
		if err := c.Shutdown(); err != nil {
			return fmt.Errorf("stop stale daemon: %w", err)
		}
		if err := c.waitGone(ctx); err != nil {
			return err
		}
	}
	if err := spawnDaemon(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}
	return c.waitReady(ctx, version)
}

// probeVersion returns the running daemon's version, or "" when no
// daemon answers.
func (c *Client) probeVersion() (string, error) {
	v, err := c.Version()
	if err != nil {
		if errors.Is(err, domain.ErrDaemonNotRunning) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

func (c *Client) waitReady(ctx context.Context, version string) error {
	deadline := time.Now().Add(startupWait)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := c.probeVersion()
		if err == nil && v == version {
			return nil
		}
		time.Sleep(startupStep)
	}
	return fmt.Errorf("daemon did not come up within %s", startupWait)
}

func (c *Client) waitGone(ctx context.Context) error {
	deadline := time.Now().Add(startupWait)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Ping(); errors.Is(err, domain.ErrDaemonNotRunning) {
			return nil
		}
		time.Sleep(startupStep)
	}
	return fmt.Errorf("old daemon did not exit within %s", startupWait)
}

// spawnDaemon starts "agentry daemon run" detached from the calling
// terminal so it outlives the CLI process.
func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, "daemon", "run")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	// Detach fully; the daemon manages its own lifetime.
	return cmd.Process.Release()
}
