package domain

import (
	"slices"
	"strings"
)

// ProjectKey identifies a project: the canonical filesystem path of a
// repository root. It partitions every other piece of daemon state.
type ProjectKey struct {
	RepoRoot string `json:"repoRoot"`
}

// TaskInfo is the task entry carried in a snapshot: identity plus the
// status derived on the last poll.
type TaskInfo struct {
	Slug       string `json:"slug"`
	BaseBranch string `json:"baseBranch,omitempty"`
	Agent      string `json:"agent,omitempty"`
	Status     Status `json:"status"`
	ID         int    `json:"id"`
}

// SessionInfo is the raw fact set about one live multiplexer session.
// It carries no interpretation; status derivation happens elsewhere.
type SessionInfo struct {
	Name           string   `json:"name"`
	Task           TaskMeta `json:"task"`
	SessionID      int64    `json:"sessionId"`
	CreatedAtMS    int64    `json:"createdAtMs"`
	LastActivityMS int64    `json:"lastActivityMs"`
	Clients        int      `json:"clients"`
	PaneDead       bool     `json:"paneDead"`
}

// TaskMetrics holds live git metrics for one task.
// UpdatedAtMS is preserved from the previous snapshot when the numbers
// have not changed, so unchanged metrics compare equal across polls.
type TaskMetrics struct {
	Task           TaskMeta `json:"task"`
	UncommittedAdd int      `json:"uncommittedAdd"`
	UncommittedDel int      `json:"uncommittedDel"`
	CommitsAhead   int      `json:"commitsAhead"`
	UpdatedAtMS    int64    `json:"updatedAtMs"`
}

// Snapshot is the composite state of one project at one instant: the
// unit of broadcast to subscribers.
type Snapshot struct {
	Tasks    []TaskInfo    `json:"tasks"`
	Sessions []SessionInfo `json:"sessions"`
	Metrics  []TaskMetrics `json:"metrics"`
}

// Normalize sorts the snapshot's slices into canonical order so that
// equal content always compares equal.
func (s *Snapshot) Normalize() {
	slices.SortFunc(s.Tasks, func(a, b TaskInfo) int {
		if a.ID != b.ID {
			return a.ID - b.ID
		}
		return strings.Compare(a.Slug, b.Slug)
	})
	slices.SortFunc(s.Sessions, func(a, b SessionInfo) int {
		switch {
		case a.SessionID < b.SessionID:
			return -1
		case a.SessionID > b.SessionID:
			return 1
		default:
			return strings.Compare(a.Name, b.Name)
		}
	})
	slices.SortFunc(s.Metrics, func(a, b TaskMetrics) int {
		if a.Task.ID != b.Task.ID {
			return a.Task.ID - b.Task.ID
		}
		return strings.Compare(a.Task.Slug, b.Task.Slug)
	})
}

// Equal reports whether two normalized snapshots carry identical content.
// The broadcast invariant relies on this: a subscriber never receives two
// identical snapshots back to back.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if other == nil {
		return false
	}
	return slices.Equal(s.Tasks, other.Tasks) &&
		slices.Equal(s.Sessions, other.Sessions) &&
		slices.Equal(s.Metrics, other.Metrics)
}

// MetricsFor returns the metrics entry for a task, if present.
func (s *Snapshot) MetricsFor(task TaskMeta) (TaskMetrics, bool) {
	for _, m := range s.Metrics {
		if m.Task == task {
			return m, true
		}
	}
	return TaskMetrics{}, false
}

// SessionFor returns the latest session bound to a task, if any.
// When several sessions match (a restart race), the most recently
// created one wins.
func (s *Snapshot) SessionFor(task TaskMeta) (SessionInfo, bool) {
	var latest SessionInfo
	found := false
	for _, si := range s.Sessions {
		if si.Task != task {
			continue
		}
		if !found || si.CreatedAtMS >= latest.CreatedAtMS {
			latest = si
			found = true
		}
	}
	return latest, found
}
