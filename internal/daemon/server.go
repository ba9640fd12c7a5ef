// Package daemon implements the background orchestration daemon: the
// session/task state engine, the control protocol over a local socket,
// and the TUI follow registry.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/protocol"
)

// liveProbeTimeout bounds the ping exchange used to decide whether a
// bound socket belongs to a healthy daemon or a stale one.
const liveProbeTimeout = 250 * time.Millisecond

// projectState carries the per-project snapshot bookkeeping. The lock
// guards field access only; snapshot builds and subscriber sends
// happen outside it.
type projectState struct {
	last          *domain.Snapshot
	lastMetricsAt time.Time
	mu            sync.Mutex
}

// refreshRequest asks the poller goroutine for an immediate rebuild.
// attach, when set, is registered as a subscriber after the rebuild's
// broadcast and handed the fresh snapshot, so a newcomer never
// swallows a change the existing subscribers have not seen.
type refreshRequest struct {
	project domain.ProjectKey
	attach  *subscriber
	done    chan *domain.Snapshot
}

// Server is the orchestration daemon.
type Server struct {
	cfg      *domain.Config
	version  string
	log      *slog.Logger
	sessions domain.SessionManager
	builder  *SnapshotBuilder
	subs     *subscriberSet
	tuis     *TuiRegistry

	mu       sync.Mutex // guards projects
	projects map[string]*projectState

	refreshCh chan refreshRequest

	socketPath string
	ln         net.Listener
	shutdown   chan struct{}
	closeOnce  sync.Once
}

// NewServer creates a daemon server. The listener is bound by Listen.
func NewServer(
	cfg *domain.Config,
	version string,
	socketPath string,
	sessions domain.SessionManager,
	builder *SnapshotBuilder,
	tuis *TuiRegistry,
	log *slog.Logger,
) *Server {
	return &Server{
		cfg:        cfg,
		version:    version,
		socketPath: socketPath,
		sessions:   sessions,
		builder:    builder,
		subs:       newSubscriberSet(),
		tuis:       tuis,
		projects:   make(map[string]*projectState),
		refreshCh:  make(chan refreshRequest),
		log:        log,
		shutdown:   make(chan struct{}),
	}
}

// Listen binds the control socket. Binding is the single-instance
// mechanism: if the path is already bound, a bounded ping decides
// whether the existing daemon is healthy (ErrDaemonRunning) or stale
// (remove the path and rebind).
func (s *Server) Listen() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err == nil {
		s.ln = ln
		return nil
	}

	if ProbeSocket(s.socketPath, liveProbeTimeout) == nil {
		return domain.ErrDaemonRunning
	}
	// Stale socket left over from a crashed daemon.
	if rmErr := os.Remove(s.socketPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", rmErr)
	}
	ln, err = net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("bind socket: %w", err)
	}
	s.ln = ln
	return nil
}

// ProbeSocket performs a bounded ping/pong against a daemon socket.
// Timeout or any protocol mismatch counts as unreachable.
func ProbeSocket(socketPath string, timeout time.Duration) error {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	deadline := time.Now().Add(timeout)
	_ = conn.SetDeadline(deadline)

	const nonce = 0x61677430 // arbitrary
	if err := protocol.WriteClient(conn, protocol.Ping{Nonce: nonce}); err != nil {
		return err
	}
	reply, err := protocol.ReadServer(conn)
	if err != nil {
		return err
	}
	pong, ok := reply.(protocol.Pong)
	if !ok || pong.Nonce != nonce {
		return domain.ErrProtocol
	}
	return nil
}

// Run serves connections until Shutdown. It owns three background
// activities: the accept loop (this goroutine), the poller, and the
// TUI liveness sweep.
func (s *Server) Run() error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.log.Info("daemon listening", "socket", s.socketPath, "version", s.version)

	go s.pollLoop()
	go s.sweepLoop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				_ = os.Remove(s.socketPath)
				return nil
			default:
			}
			s.log.Error("accept failed", "error", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// Stop initiates orderly shutdown.
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		close(s.shutdown)
		if s.ln != nil {
			_ = s.ln.Close()
		}
	})
}

func (s *Server) stateFor(repoRoot string) *projectState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.projects[repoRoot]
	if st == nil {
		st = &projectState{}
		s.projects[repoRoot] = st
	}
	return st
}

// knownProjects returns every root with a subscriber or cached state.
func (s *Server) knownProjects() []string {
	seen := make(map[string]bool)
	var roots []string
	for _, root := range s.subs.projects() {
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	s.mu.Lock()
	for root := range s.projects {
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	s.mu.Unlock()
	return roots
}

// requestRefresh hands a rebuild to the poller goroutine, which owns
// every snapshot build, and waits for the result. A nil snapshot means
// the build failed or the daemon is shutting down.
func (s *Server) requestRefresh(project domain.ProjectKey, attach *subscriber) *domain.Snapshot {
	req := refreshRequest{project: project, attach: attach, done: make(chan *domain.Snapshot, 1)}
	select {
	case s.refreshCh <- req:
	case <-s.shutdown:
		return nil
	}
	select {
	case snap := <-req.done:
		return snap
	case <-s.shutdown:
		return nil
	}
}

// refresh rebuilds a project's snapshot and broadcasts it when the
// content changed. forceMetrics bypasses the metrics cadence, used for
// explicit recompute requests. It runs only on the poller goroutine,
// the sole writer of st.last; the state lock is held just to read and
// swap fields, never across the build or a send.
func (s *Server) refresh(project domain.ProjectKey, forceMetrics bool) *domain.Snapshot {
	st := s.stateFor(project.RepoRoot)
	st.mu.Lock()
	prev, lastMetricsAt := st.last, st.lastMetricsAt
	st.mu.Unlock()

	now := time.Now()
	withMetrics := forceMetrics || now.Sub(lastMetricsAt) >= s.cfg.MetricsInterval()

	snap, err := s.builder.Build(project, prev, withMetrics)
	if err != nil {
		s.log.Warn("snapshot build failed", "project", project.RepoRoot, "error", err)
		return nil
	}

	st.mu.Lock()
	if withMetrics {
		st.lastMetricsAt = now
	}
	changed := prev == nil || !snap.Equal(prev)
	if changed {
		st.last = snap
	}
	st.mu.Unlock()

	if changed {
		s.broadcast(project, snap)
	}
	return snap
}

// broadcast fans a snapshot out to the project's subscribers. Sends
// are channel handoffs to each subscriber's writer goroutine; a full
// buffer means the peer stopped reading and the subscriber is dropped.
func (s *Server) broadcast(project domain.ProjectKey, snap *domain.Snapshot) {
	push := protocol.SnapshotPush{Project: project, Snapshot: *snap}
	for _, sub := range s.subs.copyFor(project.RepoRoot) {
		if err := sub.enqueue(push); err != nil {
			s.log.Info("dropping subscriber", "id", sub.id, "project", sub.repoRoot, "error", err)
			s.subs.remove(sub)
			sub.stop()
		}
	}
}

// handleConn runs one connection. The first message decides whether it
// becomes a stream (subscribe, follow) or stays in one-shot
// request/response mode for its whole lifetime.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		msg, err := protocol.ReadClient(conn)
		if err != nil {
			var unknown *protocol.ErrUnknownKind
			if errors.As(err, &unknown) {
				// Protocol error on a sound frame: typed reply, keep going.
				_ = protocol.WriteServer(conn, protocol.Error{Message: unknown.Error()})
				continue
			}
			// EOF or framing corruption: nothing sensible left to read.
			return
		}

		switch m := msg.(type) {
		case protocol.Subscribe:
			s.serveSubscriber(conn, m)
			return
		case protocol.TuiFollow:
			s.serveFollower(conn, m)
			return
		case protocol.Shutdown:
			_ = protocol.WriteServer(conn, protocol.Goodbye{})
			s.Stop()
			return
		default:
			s.handleOneShot(conn, msg)
		}
	}
}

func (s *Server) handleOneShot(conn net.Conn, msg protocol.ClientMessage) {
	var reply protocol.ServerMessage
	switch m := msg.(type) {
	case protocol.Ping:
		reply = protocol.Pong{Nonce: m.Nonce}
	case protocol.GetVersion:
		reply = protocol.Version{Version: s.version}
	case protocol.GetSnapshot:
		reply = s.handleGetSnapshot(m)
	case protocol.NotifyChanged:
		s.requestRefresh(m.Project, nil)
		reply = protocol.Ack{}
	case protocol.StartSession:
		reply = s.handleStartSession(m)
	case protocol.StopTask:
		reply = s.handleStopTask(m)
	case protocol.StopSession:
		reply = s.handleStopSession(m)
	case protocol.TuiRegister:
		id := s.tuis.Register(m.Project.RepoRoot, m.PID)
		reply = protocol.TuiRegistered{TuiID: id}
	case protocol.TuiUnregister:
		id, followers := s.tuis.Unregister(m.Project.RepoRoot, m.PID)
		s.stopFollowers(id, "tui unregistered", followers)
		reply = protocol.Ack{}
	case protocol.TuiFocusChange:
		reply = s.handleFocusChange(m)
	case protocol.TuiList:
		reply = protocol.TuiListReply{Items: s.tuis.List(m.Project.RepoRoot)}
	default:
		reply = protocol.Error{Message: fmt.Sprintf("unexpected message %T", msg)}
	}
	if err := protocol.WriteServer(conn, reply); err != nil {
		s.log.Debug("reply write failed", "error", err)
	}
}

func (s *Server) handleGetSnapshot(m protocol.GetSnapshot) protocol.ServerMessage {
	st := s.stateFor(m.Project.RepoRoot)
	st.mu.Lock()
	prev := st.last
	st.mu.Unlock()

	snap, err := s.builder.Build(m.Project, prev, true)
	if err != nil {
		return protocol.Error{Message: err.Error()}
	}
	return protocol.SnapshotPush{Project: m.Project, Snapshot: *snap}
}

func (s *Server) handleStartSession(m protocol.StartSession) protocol.ServerMessage {
	name := domain.SessionName(m.Task)
	err := s.sessions.Start(context.Background(), domain.StartSessionOptions{
		Task:     m.Task,
		RepoRoot: m.Project.RepoRoot,
		Dir:      m.Dir,
		Command:  m.Command,
		Env:      m.Env,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionRunning) {
			return protocol.Error{Message: fmt.Sprintf("session %s already running", name)}
		}
		return protocol.Error{Message: err.Error()}
	}
	s.log.Info("session started", "session", name, "project", m.Project.RepoRoot)
	s.requestRefresh(m.Project, nil)
	return protocol.Ack{}
}

func (s *Server) handleStopTask(m protocol.StopTask) protocol.ServerMessage {
	sessions, err := s.sessions.List(m.Project.RepoRoot)
	if err != nil {
		return protocol.Error{Message: err.Error()}
	}
	stopped := 0
	for _, si := range sessions {
		if si.Task != m.Task {
			continue
		}
		if err := s.sessions.Kill(m.Project.RepoRoot, si.Name); err != nil {
			s.log.Warn("kill session failed", "session", si.Name, "error", err)
			continue
		}
		stopped++
	}
	if stopped > 0 {
		s.requestRefresh(m.Project, nil)
	}
	return protocol.Ack{Stopped: stopped}
}

// handleStopSession resolves a bare multiplexer id across every known
// project, since callers addressing sessions by id may not know which
// project owns them.
func (s *Server) handleStopSession(m protocol.StopSession) protocol.ServerMessage {
	for _, root := range s.knownProjects() {
		sessions, err := s.sessions.List(root)
		if err != nil {
			continue
		}
		for _, si := range sessions {
			if si.SessionID != m.SessionID {
				continue
			}
			if err := s.sessions.Kill(root, si.Name); err != nil {
				return protocol.Error{Message: err.Error()}
			}
			s.requestRefresh(domain.ProjectKey{RepoRoot: root}, nil)
			return protocol.Ack{Stopped: 1}
		}
	}
	return protocol.Ack{Stopped: 0}
}

func (s *Server) handleFocusChange(m protocol.TuiFocusChange) protocol.ServerMessage {
	ok, followers := s.tuis.Focus(m.Project.RepoRoot, m.TuiID, m.TaskID)
	if !ok {
		return protocol.Error{Message: domain.ErrTuiNotFound.Error()}
	}
	event := protocol.TuiFocusChanged{Project: m.Project, TuiID: m.TuiID, TaskID: m.TaskID}
	for _, f := range followers {
		if err := f.SendFocus(event); err != nil {
			s.log.Debug("focus push failed", "tui", m.TuiID, "error", err)
		}
	}
	return protocol.Ack{}
}

func (s *Server) stopFollowers(tuiID int, reason string, followers []FocusSink) {
	for _, f := range followers {
		if err := f.SendStopped(protocol.TuiFollowStopped{TuiID: tuiID, Reason: reason}); err != nil {
			s.log.Debug("follower stop push failed", "tui", tuiID, "error", err)
		}
	}
}

// serveSubscriber registers the connection for a project's snapshot
// stream: current snapshot first, then every change until disconnect.
// The initial rebuild runs through the poller goroutine, which
// broadcasts it to the existing subscribers when it differs from the
// last one they saw before handing it to the newcomer.
func (s *Server) serveSubscriber(conn net.Conn, m protocol.Subscribe) {
	sub := newSubscriber(m.Project.RepoRoot, conn)
	if snap := s.requestRefresh(m.Project, sub); snap == nil {
		_ = protocol.WriteServer(conn, protocol.Error{Message: "snapshot unavailable"})
		return
	}
	go sub.writeLoop()
	s.log.Debug("subscriber added", "id", sub.id, "project", m.Project.RepoRoot)

	// Disconnect is the unsubscribe signal; block until the peer goes
	// away. Subscribers send nothing after the first message.
	drain(conn)
	s.subs.remove(sub)
	sub.stop()
	s.log.Debug("subscriber removed", "id", sub.id)
}

// connSink adapts a follower connection to the FocusSink interface.
type connSink struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (c *connSink) SendFocus(msg protocol.TuiFocusChanged) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteServer(c.conn, msg)
}

func (c *connSink) SendStopped(msg protocol.TuiFollowStopped) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteServer(c.conn, msg)
}

// serveFollower runs the follow handshake and keeps the connection
// registered as a focus sink until the peer disconnects or the target
// goes away.
func (s *Server) serveFollower(conn net.Conn, m protocol.TuiFollow) {
	sink := &connSink{conn: conn}
	tuiID, focused, err := s.tuis.Follow(m.Project.RepoRoot, m.TuiID, sink)
	if err != nil {
		_ = protocol.WriteServer(conn, protocol.TuiFollowFailed{Message: err.Error()})
		return
	}
	if err := protocol.WriteServer(conn, protocol.TuiFollowSucceeded{TuiID: tuiID}); err != nil {
		s.tuis.DropFollower(m.Project.RepoRoot, tuiID, sink)
		return
	}
	if focused != nil {
		_ = sink.SendFocus(protocol.TuiFocusChanged{Project: m.Project, TuiID: tuiID, TaskID: *focused})
	}

	drain(conn)
	s.tuis.DropFollower(m.Project.RepoRoot, tuiID, sink)
}

// drain consumes the connection until EOF or error.
func drain(conn net.Conn) {
	buf := make([]byte, 256)
	for {
		if _, err := conn.Read(buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			return
		}
	}
}
