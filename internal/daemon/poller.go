package daemon

import (
	"time"

	"github.com/agentry-dev/agentry/internal/domain"
	"github.com/agentry-dev/agentry/internal/protocol"
)

// sweepInterval is how often dead dashboard registrations are reaped.
const sweepInterval = 10 * time.Second

// pollLoop drives the periodic refresh of every known project and
// serves explicit refresh requests in between ticks. It is the only
// goroutine that builds snapshots, so builds, diffs and broadcasts
// stay serialized per project without a lock held across I/O. Metrics
// collection rides the same loop on its own, slower cadence, tracked
// per project inside refresh.
func (s *Server) pollLoop() {
	ticker := time.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case req := <-s.refreshCh:
			s.serveRefresh(req)
		case <-ticker.C:
			for _, root := range s.knownProjects() {
				s.refresh(domain.ProjectKey{RepoRoot: root}, false)
			}
		}
	}
}

// serveRefresh handles one explicit rebuild: refresh (which broadcasts
// any change to the current subscribers), then attach the new
// subscriber, if any, and hand it the fresh snapshot.
func (s *Server) serveRefresh(req refreshRequest) {
	snap := s.refresh(req.project, true)
	if req.attach != nil && snap != nil {
		s.subs.add(req.attach)
		if err := req.attach.enqueue(protocol.SnapshotPush{Project: req.project, Snapshot: *snap}); err != nil {
			s.subs.remove(req.attach)
			req.attach.stop()
			snap = nil
		}
	}
	req.done <- snap
}

// sweepLoop reaps registrations whose dashboard process is gone and
// tells their followers, so `agentry follow` exits instead of hanging
// on a dead target.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			for _, swept := range s.tuis.Sweep() {
				s.log.Info("swept dead tui", "project", swept.RepoRoot, "tui", swept.TuiID)
				s.stopFollowers(swept.TuiID, "tui process exited", swept.Followers)
			}
		}
	}
}
