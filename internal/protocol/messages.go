// Package protocol defines the typed control protocol spoken over the
// daemon's local socket: a closed set of client and daemon message kinds
// carried in length-prefixed JSON frames.
package protocol

import "github.com/agentry-dev/agentry/internal/domain"

// Message kind tags. The set is closed: the frame decoder matches
// exhaustively and rejects anything else.
const (
	// client -> daemon
	KindStartSession  = "start_session"
	KindStopSession   = "stop_session"
	KindStopTask      = "stop_task"
	KindGetSnapshot   = "get_snapshot"
	KindSubscribe     = "subscribe"
	KindNotifyChanged = "notify_changed"
	KindPing          = "ping"
	KindGetVersion    = "get_version"
	KindShutdown      = "shutdown"
	KindTuiRegister   = "tui_register"
	KindTuiUnregister = "tui_unregister"
	KindTuiFocus      = "tui_focus_change"
	KindTuiFollow     = "tui_follow"
	KindTuiList       = "tui_list"

	// daemon -> client
	KindSnapshot           = "snapshot"
	KindTuiRegistered      = "tui_registered"
	KindTuiFollowSucceeded = "tui_follow_succeeded"
	KindTuiFollowFailed    = "tui_follow_failed"
	KindTuiFocusChanged    = "tui_focus_changed"
	KindTuiFollowStopped   = "tui_follow_stopped"
	KindTuiListReply       = "tui_list_reply"
	KindAck                = "ack"
	KindError              = "error"
	KindPong               = "pong"
	KindVersion            = "version"
	KindGoodbye            = "goodbye"
)

// ClientMessage is a message sent from a client to the daemon.
type ClientMessage interface{ clientKind() string }

// ServerMessage is a message sent from the daemon to a client.
type ServerMessage interface{ serverKind() string }

// --- client -> daemon ---

// StartSession asks the daemon to create a detached session for a task.
// The caller resolves the agent command, working directory and extra
// environment; the daemon only drives the session adapter and broadcasts
// the resulting state change.
type StartSession struct {
	Env     map[string]string `json:"env,omitempty"`
	Command string            `json:"command"`
	Dir     string            `json:"dir"`
	Project domain.ProjectKey `json:"project"`
	Task    domain.TaskMeta   `json:"task"`
}

// StopSession terminates the session with the given multiplexer id,
// whichever project it belongs to.
type StopSession struct {
	SessionID int64 `json:"sessionId"`
}

// StopTask terminates every session bound to a task.
type StopTask struct {
	Project domain.ProjectKey `json:"project"`
	Task    domain.TaskMeta   `json:"task"`
}

// GetSnapshot requests a one-shot composite snapshot for a project.
type GetSnapshot struct {
	Project domain.ProjectKey `json:"project"`
}

// Subscribe upgrades the connection to a snapshot stream for a project.
// The daemon replies with the current snapshot, then pushes every
// subsequent change until the connection closes.
type Subscribe struct {
	Project domain.ProjectKey `json:"project"`
}

// NotifyChanged requests an immediate recompute and broadcast for a
// project, typically after an external task-file mutation.
type NotifyChanged struct {
	Project domain.ProjectKey `json:"project"`
}

// Ping is a liveness probe; the nonce is echoed back in the Pong.
type Ping struct {
	Nonce uint64 `json:"nonce"`
}

// GetVersion requests the daemon's version string.
type GetVersion struct{}

// Shutdown requests orderly daemon termination.
type Shutdown struct{}

// TuiRegister registers a dashboard instance for a project.
type TuiRegister struct {
	Project domain.ProjectKey `json:"project"`
	PID     int               `json:"pid"`
}

// TuiUnregister removes a dashboard registration on clean exit.
type TuiUnregister struct {
	Project domain.ProjectKey `json:"project"`
	PID     int               `json:"pid"`
}

// TuiFocusChange reports that a registered dashboard's selection moved.
type TuiFocusChange struct {
	Project domain.ProjectKey `json:"project"`
	TuiID   int               `json:"tuiId"`
	TaskID  int               `json:"taskId"`
}

// TuiFollow starts following a dashboard's focus. TuiID 0 auto-selects
// when exactly one registration exists for the project.
type TuiFollow struct {
	Project domain.ProjectKey `json:"project"`
	TuiID   int               `json:"tuiId,omitempty"`
}

// TuiList enumerates the open dashboards for a project.
type TuiList struct {
	Project domain.ProjectKey `json:"project"`
}

func (StartSession) clientKind() string   { return KindStartSession }
func (StopSession) clientKind() string    { return KindStopSession }
func (StopTask) clientKind() string       { return KindStopTask }
func (GetSnapshot) clientKind() string    { return KindGetSnapshot }
func (Subscribe) clientKind() string      { return KindSubscribe }
func (NotifyChanged) clientKind() string  { return KindNotifyChanged }
func (Ping) clientKind() string           { return KindPing }
func (GetVersion) clientKind() string     { return KindGetVersion }
func (Shutdown) clientKind() string       { return KindShutdown }
func (TuiRegister) clientKind() string    { return KindTuiRegister }
func (TuiUnregister) clientKind() string  { return KindTuiUnregister }
func (TuiFocusChange) clientKind() string { return KindTuiFocus }
func (TuiFollow) clientKind() string      { return KindTuiFollow }
func (TuiList) clientKind() string        { return KindTuiList }

// --- daemon -> client ---

// SnapshotPush carries a project's composite snapshot, either as a
// one-shot reply or as a stream element.
type SnapshotPush struct {
	Snapshot domain.Snapshot   `json:"snapshot"`
	Project  domain.ProjectKey `json:"project"`
}

// TuiRegistered acknowledges a registration with the assigned id.
type TuiRegistered struct {
	TuiID int `json:"tuiId"`
}

// TuiFollowSucceeded confirms a follow handshake.
type TuiFollowSucceeded struct {
	TuiID int `json:"tuiId"`
}

// TuiFollowFailed rejects a follow handshake.
type TuiFollowFailed struct {
	Message string `json:"message"`
}

// TuiFocusChanged is pushed to followers when the followed dashboard's
// focus moves.
type TuiFocusChanged struct {
	Project domain.ProjectKey `json:"project"`
	TuiID   int               `json:"tuiId"`
	TaskID  int               `json:"taskId"`
}

// TuiFollowStopped tells a follower its target deregistered or was
// swept, so the follower can exit instead of timing out silently.
type TuiFollowStopped struct {
	Reason string `json:"reason"`
	TuiID  int    `json:"tuiId"`
}

// TuiInfo describes one registered dashboard.
type TuiInfo struct {
	FocusedTaskID *int `json:"focusedTaskId,omitempty"`
	TuiID         int  `json:"tuiId"`
	PID           int  `json:"pid"`
}

// TuiListReply answers a TuiList request.
type TuiListReply struct {
	Items []TuiInfo `json:"items"`
}

// Ack acknowledges a mutation; Stopped counts terminated sessions where
// that applies.
type Ack struct {
	Stopped int `json:"stopped"`
}

// Error is the typed failure reply; the connection stays open.
type Error struct {
	Message string `json:"message"`
}

// Pong answers a Ping with the caller's nonce.
type Pong struct {
	Nonce uint64 `json:"nonce"`
}

// Version answers a GetVersion request.
type Version struct {
	Version string `json:"version"`
}

// Goodbye acknowledges a Shutdown request.
type Goodbye struct{}

func (SnapshotPush) serverKind() string       { return KindSnapshot }
func (TuiRegistered) serverKind() string      { return KindTuiRegistered }
func (TuiFollowSucceeded) serverKind() string { return KindTuiFollowSucceeded }
func (TuiFollowFailed) serverKind() string    { return KindTuiFollowFailed }
func (TuiFocusChanged) serverKind() string    { return KindTuiFocusChanged }
func (TuiFollowStopped) serverKind() string   { return KindTuiFollowStopped }
func (TuiListReply) serverKind() string       { return KindTuiListReply }
func (Ack) serverKind() string                { return KindAck }
func (Error) serverKind() string              { return KindError }
func (Pong) serverKind() string               { return KindPong }
func (Version) serverKind() string            { return KindVersion }
func (Goodbye) serverKind() string            { return KindGoodbye }
