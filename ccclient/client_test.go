package ccclient

import (
	"os"
	"testing"
	"time"

	"github.com/ehrlich-b/muxmirror/ctlproto"
	"github.com/ehrlich-b/muxmirror/eventloop"
	"github.com/ehrlich-b/muxmirror/muxerr"
	"github.com/ehrlich-b/muxmirror/procsup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoop is a minimal eventloop.Loop the client tests drive by hand: it
// records the one registered timer and lets the test fire it directly,
// simulating the reactor reaching that point without a real epoll wait.
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

func (f *fakeLoop) fire(s eventloop.Source) {
	if cb, ok := f.timers[s]; ok {
		cb()
	}
}

// newTestClient wires a Client around an in-process pipe instead of a real
// control-mode child, exercising the Exec/Result/Busy bookkeeping without
// needing procsup.Supervisor.Launch.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	_, stdinW, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { stdinW.Close() })

	c := &Client{
		sup:     procsup.NewSupervisor(),
		child:   &procsup.Child{Stdin: stdinW, Pid: -1},
		loop:    newFakeLoop(),
		timeout: time.Second,
	}
	c.parser = ctlproto.NewParser(ctlproto.Callbacks{
		Notify: func(name, rest string) {
			if name == ctlproto.EvExit {
				c.handleExit()
			}
		},
		Result: func(cmdNum int, flags string, payload []byte, isError bool) {
			c.clearTimer()
			cb := c.pending
			c.pending = nil
			if cb != nil {
				cb(payload, isError, nil)
			}
		},
	})
	return c
}

func TestClient_ExecRejectsWhileBusy(t *testing.T) {
	c := newTestClient(t)

	err := c.Exec([]string{"list-sessions"}, func(payload []byte, isError bool, err error) {})
	require.NoError(t, err)
	assert.True(t, c.Busy())

	err = c.Exec([]string{"list-windows"}, func(payload []byte, isError bool, err error) {})
	require.Error(t, err)
	assert.True(t, muxerr.Is(err, muxerr.Busy))
}

func TestClient_ResultClearsPending(t *testing.T) {
	c := newTestClient(t)

	var gotPayload []byte
	var gotErr bool
	require.NoError(t, c.Exec([]string{"list-sessions"}, func(payload []byte, isError bool, err error) {
		gotPayload, gotErr = payload, isError
	}))

	c.parser.Feed([]byte("%begin 1 1 1\n$0: 1 windows\n%end 1 1 1\n"))

	assert.False(t, c.Busy())
	assert.False(t, gotErr)
	assert.Equal(t, "$0: 1 windows", string(gotPayload))
}

func TestClient_ExecOnClosedClient(t *testing.T) {
	c := newTestClient(t)
	c.closed = true

	err := c.Exec([]string{"list-sessions"}, func(payload []byte, isError bool, err error) {})
	require.Error(t, err)
}

func TestClient_ExecTimesOutWhenNoResultArrives(t *testing.T) {
	c := newTestClient(t)

	var gotErr error
	require.NoError(t, c.Exec([]string{"list-sessions"}, func(payload []byte, isError bool, err error) {
		gotErr = err
	}))
	assert.True(t, c.Busy())

	c.loop.(*fakeLoop).fire(c.pendingTimer)

	assert.False(t, c.Busy())
	require.Error(t, gotErr)
	assert.True(t, muxerr.Is(gotErr, muxerr.Timeout))
}

func TestClient_ResultBeforeTimeoutDisarmsTimer(t *testing.T) {
	c := newTestClient(t)

	require.NoError(t, c.Exec([]string{"list-sessions"}, func(payload []byte, isError bool, err error) {}))
	timerSrc := c.pendingTimer
	require.NotNil(t, timerSrc)

	c.parser.Feed([]byte("%begin 1 1 1\n$0: 1 windows\n%end 1 1 1\n"))

	assert.Nil(t, c.pendingTimer)
	loop := c.loop.(*fakeLoop)
	_, stillArmed := loop.timers[timerSrc]
	assert.False(t, stillArmed)
}
