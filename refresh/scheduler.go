// Package refresh is the dirty-bitmask scheduler (spec.md §4.6): it
// coalesces the bits ctlproto sets as notifications arrive, and drives one
// reconciliation pass per reactor tick in a fixed precedence order so a
// burst of notifications within the same tick collapses into a single
// pass per category instead of one pass per notification.
//
// Grounded on internal/timeline/loop.go's Engine.Run/poll shape (a single
// timer-driven dispatch of "the next unit of work", one at a time, with
// the next tick re-checking for more) — adapted from a fixed polling
// ticker to a zero-delay coalescing timer armed only when there is
// actually pending work, since the reactor must stay idle otherwise.
package refresh

import (
	"time"

	"github.com/ehrlich-b/muxmirror/eventloop"
	"github.com/ehrlich-b/muxmirror/internal/dirty"
)

// DispatchFunc runs the reconciliation pass for bits (a single category,
// already reduced by precedence) and calls done once it has settled,
// whether it succeeded or not — the scheduler does not inspect outcomes,
// it only needs to know when it is safe to look at the remaining mask
// again.
type DispatchFunc func(bits dirty.Mask, done func())

// Scheduler coalesces MarkDirty calls into one DispatchFunc invocation
// per pending category per tick, via a zero-delay timer on loop.
type Scheduler struct {
	loop     eventloop.Loop
	dispatch DispatchFunc

	timer   eventloop.Source
	armed   bool
	pending dirty.Mask
	busy    bool
}

// NewScheduler returns a Scheduler that dispatches onto loop. dispatch is
// called with one category at a time, reduced from whatever bits are
// pending by the precedence rules in reduce().
func NewScheduler(loop eventloop.Loop, dispatch DispatchFunc) (*Scheduler, error) {
	s := &Scheduler{loop: loop, dispatch: dispatch}
	t, err := loop.AddTimer(s.onTimer)
	if err != nil {
		return nil, err
	}
	s.timer = t
	return s, nil
}

// MarkDirty merges bits into the pending mask and arms the coalescing
// timer if it is not already armed. Safe to call repeatedly within the
// same reactor tick — only the first call in a quiet period actually
// touches the event loop.
func (s *Scheduler) MarkDirty(bits dirty.Mask) {
	s.pending |= bits
	s.arm()
}

func (s *Scheduler) arm() {
	if s.armed || s.busy || s.pending == 0 {
		return
	}
	s.armed = true
	// Loop.TimerUpdate treats d <= 0 as "disarm", so the zero-delay wake
	// uses the smallest positive delay.
	s.loop.TimerUpdate(s.timer, time.Nanosecond)
}

func (s *Scheduler) onTimer() int {
	s.armed = false
	if s.pending == 0 || s.busy {
		return 0
	}

	category, cleared := reduce(s.pending)
	s.pending &^= cleared
	s.busy = true

	s.dispatch(category, func() {
		s.busy = false
		s.arm()
	})
	return 0
}

// reduce picks the highest-precedence category present in m and returns
// it along with the full set of bits that handling it clears. A sessions
// pass re-derives the whole tree, so it clears everything; a windows pass
// re-derives pane layout as a side effect, so it clears panes too; a
// panes or clients pass clears only itself.
func reduce(m dirty.Mask) (category, cleared dirty.Mask) {
	switch {
	case m.Has(dirty.Sessions):
		return dirty.Sessions, dirty.Sessions | dirty.Windows | dirty.Panes | dirty.Clients
	case m.Has(dirty.Windows):
		return dirty.Windows, dirty.Windows | dirty.Panes
	case m.Has(dirty.Panes):
		return dirty.Panes, dirty.Panes
	default:
		return dirty.Clients, dirty.Clients
	}
}

// Close disarms and removes the scheduler's timer.
func (s *Scheduler) Close() error {
	return s.loop.Remove(s.timer)
}

// Pending reports the currently unhandled dirty bits, for tests and
// diagnostics.
func (s *Scheduler) Pending() dirty.Mask { return s.pending }
