package muxmirror

import (
	"testing"
	"time"

	"github.com/ehrlich-b/muxmirror/eventloop"
	"github.com/ehrlich-b/muxmirror/model"
	"github.com/ehrlich-b/muxmirror/muxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopLoop satisfies eventloop.Loop without ever actually scheduling
// anything; it's only used here to exercise the guard clauses in Connect
// that fail before the loop is touched.
type noopLoop struct{}

func (noopLoop) AddFD(fd int, mask eventloop.FDMask, cb eventloop.FDCallback) (eventloop.Source, error) {
	return new(struct{}), nil
}
func (noopLoop) AddTimer(cb eventloop.TimerCallback) (eventloop.Source, error) {
	return new(struct{}), nil
}
func (noopLoop) TimerUpdate(s eventloop.Source, d time.Duration) error { return nil }
func (noopLoop) Remove(s eventloop.Source) error                      { return nil }

func TestConnect_RequiresBinPath(t *testing.T) {
	c := New()
	err := c.Connect(noopLoop{})
	require.Error(t, err)
	assert.True(t, muxerr.Is(err, muxerr.InvalidArg))
}

func TestConnect_RejectsWhenAlreadyConnected(t *testing.T) {
	c := New()
	require.NoError(t, c.SetBinPath("/usr/bin/tmux"))
	c.model.SetConnected(true)

	err := c.Connect(noopLoop{})
	require.Error(t, err)
	assert.True(t, muxerr.Is(err, muxerr.Busy))
}

func TestSetters_FailWithBusyWhileConnected(t *testing.T) {
	c := New()
	c.model.SetConnected(true)

	assert.True(t, muxerr.Is(c.SetBinPath("x"), muxerr.Busy))
	assert.True(t, muxerr.Is(c.SetSocketName("x"), muxerr.Busy))
	assert.True(t, muxerr.Is(c.SetSocketPath("x"), muxerr.Busy))
	assert.True(t, muxerr.Is(c.SetConfigFile("x"), muxerr.Busy))
	assert.True(t, muxerr.Is(c.SetTimeout(1000), muxerr.Busy))
	assert.True(t, muxerr.Is(c.SetCallbacks(model.Callbacks{}), muxerr.Busy))
}

func TestSetSize_UpdatesModelEvenWithoutAClient(t *testing.T) {
	c := New()
	require.NoError(t, c.SetSize(120, 40))

	w, h := c.model.Size()
	assert.Equal(t, 120, w)
	assert.Equal(t, 40, h)
}

func TestSetSize_RejectsTooSmall(t *testing.T) {
	c := New()
	err := c.SetSize(1, 1)
	require.Error(t, err)
	assert.True(t, muxerr.Is(err, muxerr.InvalidArg))
}

func TestUnref_DisconnectsOnFinalReferenceWhileConnected(t *testing.T) {
	c := New()
	c.model.SetConnected(true)

	c.Unref()

	assert.False(t, c.IsConnected())
}

func TestUnref_DoesNotDisconnectWhileReferencesRemain(t *testing.T) {
	c := New()
	c.Ref() // refs: 2
	c.model.SetConnected(true)

	c.Unref() // refs: 1, still referenced

	assert.True(t, c.IsConnected())
}
