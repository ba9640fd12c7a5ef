package daemon

import (
	"sync"
	"syscall"
	"time"

	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/protocol"
)

// FocusSink receives focus events for one followed dashboard. The
// daemon-side implementation wraps a follower connection; tests supply
// fakes.
type FocusSink interface {
	SendFocus(msg protocol.TuiFocusChanged) error
	SendStopped(msg protocol.TuiFollowStopped) error
}

// tuiEntry is one registered dashboard instance.
type tuiEntry struct {
	lastSeen      time.Time
	focusedTaskID *int
	followers     []FocusSink
	pid           int
}

// TuiRegistry tracks dashboard registrations and their followers per
// project. All methods copy data out under the lock and never perform
// I/O while holding it; senders receive sink copies to deliver to.
type TuiRegistry struct {
	clock    domain.Clock
	alive    func(pid int) bool
	projects map[string]map[int]*tuiEntry
	mu       sync.Mutex
}

// NewTuiRegistry creates a registry. alive overrides the process
// liveness check; nil uses a kill(0) probe.
func NewTuiRegistry(clock domain.Clock, alive func(pid int) bool) *TuiRegistry {
	if alive == nil {
		alive = pidAlive
	}
	return &TuiRegistry{
		clock:    clock,
		alive:    alive,
		projects: make(map[string]map[int]*tuiEntry),
	}
}

// pidAlive checks process existence with a null signal. EPERM still
// means the process exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// Register assigns the smallest unused positive id among the
// currently-alive registrations for the project. Registering the same
// pid twice returns the existing id.
func (r *TuiRegistry) Register(repoRoot string, pid int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.projects[repoRoot]
	if entries == nil {
		entries = make(map[int]*tuiEntry)
		r.projects[repoRoot] = entries
	}
	for id, e := range entries {
		if e.pid == pid {
			e.lastSeen = r.clock.Now()
			return id
		}
	}
	id := 1
	for entries[id] != nil {
		id++
	}
	entries[id] = &tuiEntry{pid: pid, lastSeen: r.clock.Now()}
	return id
}

// Unregister removes the registration owned by pid and returns the
// followers that must be told to stop.
func (r *TuiRegistry) Unregister(repoRoot string, pid int) (int, []FocusSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.projects[repoRoot]
	for id, e := range entries {
		if e.pid == pid {
			followers := append([]FocusSink(nil), e.followers...)
			delete(entries, id)
			return id, followers
		}
	}
	return 0, nil
}

// Focus records a dashboard's new focused task and returns the follower
// sinks the change must be delivered to. Returns false when the tui id
// is not registered.
func (r *TuiRegistry) Focus(repoRoot string, tuiID, taskID int) (bool, []FocusSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.projects[repoRoot][tuiID]
	if e == nil {
		return false, nil
	}
	task := taskID
	e.focusedTaskID = &task
	e.lastSeen = r.clock.Now()
	return true, append([]FocusSink(nil), e.followers...)
}

// Follow attaches a follower to a dashboard. tuiID 0 auto-selects when
// exactly one registration exists; more than one is a hard error naming
// the ambiguity. Returns the resolved id and the target's current focus.
func (r *TuiRegistry) Follow(repoRoot string, tuiID int, sink FocusSink) (int, *int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.projects[repoRoot]
	if tuiID == 0 {
		switch len(entries) {
		case 0:
			return 0, nil, domain.ErrTuiNotFound
		case 1:
			for id := range entries {
				tuiID = id
			}
		default:
			return 0, nil, domain.ErrTuiAmbiguous
		}
	}
	e := entries[tuiID]
	if e == nil {
		return 0, nil, domain.ErrTuiNotFound
	}
	e.followers = append(e.followers, sink)
	var focused *int
	if e.focusedTaskID != nil {
		task := *e.focusedTaskID
		focused = &task
	}
	return tuiID, focused, nil
}

// DropFollower detaches a follower from a dashboard, typically on
// follower disconnect.
func (r *TuiRegistry) DropFollower(repoRoot string, tuiID int, sink FocusSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.projects[repoRoot][tuiID]
	if e == nil {
		return
	}
	for i, f := range e.followers {
		if f == sink {
			e.followers = append(e.followers[:i], e.followers[i+1:]...)
			return
		}
	}
}

// List enumerates the registrations for a project, ordered by id.
func (r *TuiRegistry) List(repoRoot string) []protocol.TuiInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.projects[repoRoot]
	out := make([]protocol.TuiInfo, 0, len(entries))
	for id := 1; len(out) < len(entries); id++ {
		e := entries[id]
		if e == nil {
			continue
		}
		info := protocol.TuiInfo{TuiID: id, PID: e.pid}
		if e.focusedTaskID != nil {
			task := *e.focusedTaskID
			info.FocusedTaskID = &task
		}
		out = append(out, info)
	}
	return out
}

// SweptEntry reports one registration removed by a liveness sweep.
type SweptEntry struct {
	RepoRoot  string
	Followers []FocusSink
	TuiID     int
}

// Sweep removes registrations whose owner process no longer exists and
// returns the followers of each removed entry so the caller can tell
// them to stop. Reclaimed ids become available for reuse immediately.
func (r *TuiRegistry) Sweep() []SweptEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var swept []SweptEntry
	for root, entries := range r.projects {
		for id, e := range entries {
			if r.alive(e.pid) {
				continue
			}
			swept = append(swept, SweptEntry{
				RepoRoot:  root,
				TuiID:     id,
				Followers: append([]FocusSink(nil), e.followers...),
			})
			delete(entries, id)
		}
	}
	return swept
}
