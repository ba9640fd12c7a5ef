package usecase

import (
	"context"
	"fmt"

	"github.com/agentry-dev/agentry/internal/domain"
)

// FocusSource delivers the followed dashboard's focus as a sequence of
// task ids. Next blocks; it returns ErrFollowStopped when the followed
// dashboard goes away.
type FocusSource interface {
	Next() (int, error)
}

// AttachFunc attaches a child multiplexer client to a session and
// blocks until it exits or the context is cancelled.
type AttachFunc func(ctx context.Context, sessionName string) error

// Follow is the use case behind the follow command: mirror a
// dashboard's focus by keeping a multiplexer client attached to the
// focused task's session, switching sessions as the focus moves.
type Follow struct {
	tasks domain.TaskStore
	run   AttachFunc
}

// NewFollow creates a new Follow use case.
func NewFollow(tasks domain.TaskStore, run AttachFunc) *Follow {
	return &Follow{tasks: tasks, run: run}
}

type childExit struct {
	gen int
	err error
}

// Execute runs the follow loop until the user detaches, the followed
// dashboard goes away, or the context is cancelled.
//
// Each focus change cancels the current attach child and spawns a new
// one under a bumped generation. A child exit is only authoritative
// when its generation is current; exits of cancelled children from
// earlier focus targets are discarded.
func (uc *Follow) Execute(ctx context.Context, source FocusSource) error {
	focus := make(chan int)
	sourceErr := make(chan error, 1)
	go func() {
		for {
			id, err := source.Next()
			if err != nil {
				sourceErr <- err
				return
			}
			select {
			case focus <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	exits := make(chan childExit)
	gen := 0
	var cancelChild context.CancelFunc
	defer func() {
		if cancelChild != nil {
			cancelChild()
		}
	}()

	spawn := func(taskID int) error {
		task, err := uc.tasks.Get(taskID)
		if err != nil {
			return fmt.Errorf("resolve focused task: %w", err)
		}
		name := domain.SessionName(task.Meta())
		childCtx, cancel := context.WithCancel(ctx)
		cancelChild = cancel
		g := gen
		go func() {
			err := uc.run(childCtx, name)
			select {
			case exits <- childExit{gen: g, err: err}:
			case <-ctx.Done():
			}
		}()
		return nil
	}

	for {
		select {
		case id := <-focus:
			if cancelChild != nil {
				cancelChild()
			}
			gen++
			if err := spawn(id); err != nil {
				return err
			}
		case e := <-exits:
			if e.gen != gen {
				// A cancelled child from a previous focus target.
				continue
			}
			return e.err
		case err := <-sourceErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
