package refresh

import (
	"testing"
	"time"

	"github.com/ehrlich-b/muxmirror/eventloop"
	"github.com/ehrlich-b/muxmirror/internal/dirty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoop is a minimal eventloop.Loop the scheduler tests drive by hand:
// TimerUpdate is a no-op, and FireAll invokes every
// registered timer callback once, simulating the reactor reaching that
// point in its own loop.
type fakeLoop struct {
	timers map[eventloop.Source]eventloop.TimerCallback
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{timers: map[eventloop.Source]eventloop.TimerCallback{}}
}

func (f *fakeLoop) AddFD(fd int, mask eventloop.FDMask, cb eventloop.FDCallback) (eventloop.Source, error) {
	return nil, nil
}

func (f *fakeLoop) AddTimer(cb eventloop.TimerCallback) (eventloop.Source, error) {
	src := new(struct{})
	f.timers[src] = cb
	return src, nil
}

func (f *fakeLoop) TimerUpdate(s eventloop.Source, d time.Duration) error { return nil }

func (f *fakeLoop) Remove(s eventloop.Source) error {
	delete(f.timers, s)
	return nil
}

func (f *fakeLoop) FireAll() {
	for _, cb := range f.timers {
		cb()
	}
}

func TestScheduler_CoalescesMultipleMarksIntoOnePass(t *testing.T) {
	loop := newFakeLoop()
	calls := 0
	var gotBits dirty.Mask
	sched, err := NewScheduler(loop, func(bits dirty.Mask, done func()) {
		calls++
		gotBits = bits
		done()
	})
	require.NoError(t, err)

	sched.MarkDirty(dirty.Windows)
	sched.MarkDirty(dirty.Panes)
	loop.FireAll()

	assert.Equal(t, 1, calls)
	assert.Equal(t, dirty.Windows, gotBits)
	assert.Equal(t, dirty.Mask(0), sched.Pending(), "windows pass should also clear panes")
}

func TestScheduler_SessionsPrecedesEverything(t *testing.T) {
	loop := newFakeLoop()
	var gotBits dirty.Mask
	sched, err := NewScheduler(loop, func(bits dirty.Mask, done func()) {
		gotBits = bits
		done()
	})
	require.NoError(t, err)

	sched.MarkDirty(dirty.Clients | dirty.Panes | dirty.Sessions)
	loop.FireAll()

	assert.Equal(t, dirty.Sessions, gotBits)
	assert.Equal(t, dirty.Mask(0), sched.Pending())
}

func TestScheduler_RedispatchesRemainingAfterDone(t *testing.T) {
	loop := newFakeLoop()
	var seen []dirty.Mask
	sched, err := NewScheduler(loop, func(bits dirty.Mask, done func()) {
		seen = append(seen, bits)
		done()
		if len(seen) == 1 {
			loop.FireAll()
		}
	})
	require.NoError(t, err)

	sched.MarkDirty(dirty.Windows)
	sched.MarkDirty(dirty.Clients)
	loop.FireAll()

	require.Len(t, seen, 2)
	assert.Equal(t, dirty.Windows, seen[0])
	assert.Equal(t, dirty.Clients, seen[1])
}

func TestScheduler_DoesNotDispatchWhileBusy(t *testing.T) {
	loop := newFakeLoop()
	calls := 0
	var held func()
	sched, err := NewScheduler(loop, func(bits dirty.Mask, done func()) {
		calls++
		held = done
	})
	require.NoError(t, err)

	sched.MarkDirty(dirty.Clients)
	loop.FireAll()
	assert.Equal(t, 1, calls)

	sched.MarkDirty(dirty.Panes)
	loop.FireAll()
	assert.Equal(t, 1, calls, "must not dispatch again until the in-flight pass calls done")

	held()
	loop.FireAll()
	assert.Equal(t, 2, calls)
}
