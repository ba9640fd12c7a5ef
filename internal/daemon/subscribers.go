package daemon

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/agentry-dev/agentry/internal/protocol"
)

// outboundBuffer is how many pending pushes a subscriber may fall
// behind before it counts as stalled and is dropped.
const outboundBuffer = 32

// subscriber is one connection that follows a project's snapshot
// stream. It owns an outbound channel drained by its own writer
// goroutine, so a peer that stops reading never blocks a broadcast.
type subscriber struct {
	conn     net.Conn
	id       string
	repoRoot string
	out      chan protocol.ServerMessage
	quit     chan struct{}
	stopOnce sync.Once
}

func newSubscriber(repoRoot string, conn net.Conn) *subscriber {
	return &subscriber{
		id:       uuid.NewString(),
		repoRoot: repoRoot,
		conn:     conn,
		out:      make(chan protocol.ServerMessage, outboundBuffer),
		quit:     make(chan struct{}),
	}
}

// enqueue hands one frame to the subscriber's writer without ever
// blocking the broadcaster. A full buffer means the peer stopped
// reading; the caller drops the subscriber.
func (s *subscriber) enqueue(msg protocol.ServerMessage) error {
	select {
	case <-s.quit:
		return net.ErrClosed
	default:
	}
	select {
	case s.out <- msg:
		return nil
	default:
		return fmt.Errorf("subscriber %s stalled: outbound buffer full", s.id)
	}
}

// writeLoop owns every write to the connection, delivering enqueued
// frames in order. It exits on the first failed write or on stop.
func (s *subscriber) writeLoop() {
	for {
		select {
		case <-s.quit:
			return
		case msg := <-s.out:
			if err := protocol.WriteServer(s.conn, msg); err != nil {
				s.stop()
				return
			}
		}
	}
}

// stop closes the connection, which also unblocks the serving
// goroutine's drain.
func (s *subscriber) stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		_ = s.conn.Close()
	})
}

// subscriberSet is the per-project table of live subscribers. The lock
// is held only to mutate or copy the table, never across sends.
type subscriberSet struct {
	byProject map[string][]*subscriber
	mu        sync.Mutex
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{byProject: make(map[string][]*subscriber)}
}

func (set *subscriberSet) add(sub *subscriber) {
	set.mu.Lock()
	defer set.mu.Unlock()
	set.byProject[sub.repoRoot] = append(set.byProject[sub.repoRoot], sub)
}

func (set *subscriberSet) remove(sub *subscriber) {
	set.mu.Lock()
	defer set.mu.Unlock()
	subs := set.byProject[sub.repoRoot]
	for i, s := range subs {
		if s == sub {
			set.byProject[sub.repoRoot] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(set.byProject[sub.repoRoot]) == 0 {
		delete(set.byProject, sub.repoRoot)
	}
}

// copyFor returns a copy of the project's subscriber list for sending.
func (set *subscriberSet) copyFor(repoRoot string) []*subscriber {
	set.mu.Lock()
	defer set.mu.Unlock()
	return append([]*subscriber(nil), set.byProject[repoRoot]...)
}

// projects returns the roots that currently have at least one
// subscriber.
func (set *subscriberSet) projects() []string {
	set.mu.Lock()
	defer set.mu.Unlock()
	roots := make([]string, 0, len(set.byProject))
	for root := range set.byProject {
		roots = append(roots, root)
	}
	return roots
}
