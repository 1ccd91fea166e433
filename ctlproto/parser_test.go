package ctlproto

import (
	"testing"

	"github.com/ehrlich-b/muxmirror/internal/dirty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_NotificationSetsDirtyAndNotifies(t *testing.T) {
	var gotBits dirty.Mask
	var gotName, gotRest string
	p := NewParser(Callbacks{
		Dirty:  func(bits dirty.Mask) { gotBits = bits },
		Notify: func(name, rest string) { gotName, gotRest = name, rest },
	})

	p.Feed([]byte("%window-add @3\n"))

	assert.Equal(t, dirty.Windows, gotBits)
	assert.Equal(t, EvWindowAdd, gotName)
	assert.Equal(t, "@3", gotRest)
}

func TestParser_UnknownLineResyncs(t *testing.T) {
	var unknown, after string
	p := NewParser(Callbacks{
		Unknown: func(line string) { unknown = line },
		Notify:  func(name, rest string) { after = name },
	})

	p.Feed([]byte("%bogus-event foo\n%sessions-changed\n"))

	assert.Equal(t, "%bogus-event foo", unknown)
	assert.Equal(t, EvSessionsChanged, after)
}

func TestParser_BeginEndFramesResult(t *testing.T) {
	var gotNum int
	var gotFlags string
	var gotPayload []byte
	var gotErr bool
	p := NewParser(Callbacks{
		Result: func(num int, flags string, payload []byte, isError bool) {
			gotNum, gotFlags, gotPayload, gotErr = num, flags, payload, isError
		},
	})

	p.Feed([]byte("%begin 1700000000 7 1\nline one\nline two\n%end 1700000000 7 1\n"))

	require.False(t, gotErr)
	assert.Equal(t, 7, gotNum)
	assert.Equal(t, "1", gotFlags)
	assert.Equal(t, "line one\nline two", string(gotPayload))
}

func TestParser_BeginErrorReportsFailure(t *testing.T) {
	var gotErr bool
	var gotPayload []byte
	p := NewParser(Callbacks{
		Result: func(num int, flags string, payload []byte, isError bool) {
			gotErr, gotPayload = isError, payload
		},
	})

	p.Feed([]byte("%begin 1700000001 8 1\nunknown command: frobnicate\n%error 1700000001 8 1\n"))

	assert.True(t, gotErr)
	assert.Equal(t, "unknown command: frobnicate", string(gotPayload))
}

func TestParser_PreambleBlockIsSwallowed(t *testing.T) {
	called := false
	p := NewParser(Callbacks{
		Result: func(num int, flags string, payload []byte, isError bool) { called = true },
	})
	p.ExpectPreamble = true

	p.Feed([]byte("%begin 1700000002 0 1\ntmux 3.4\n%end 1700000002 0 1\n"))

	assert.False(t, called)
	assert.False(t, p.ExpectPreamble)
}

func TestParser_IncrementalFeedAcrossPartialLines(t *testing.T) {
	var gotRest string
	p := NewParser(Callbacks{
		Notify: func(name, rest string) { gotRest = rest },
	})

	p.Feed([]byte("%window-renamed @"))
	assert.Equal(t, "", gotRest, "must not fire until the line is complete")
	p.Feed([]byte("5 newname\n"))
	assert.Equal(t, "@5 newname", gotRest)
}

func TestParser_OutputEventCarriesRawRest(t *testing.T) {
	var gotRest string
	p := NewParser(Callbacks{
		Notify: func(name, rest string) { gotRest = rest },
	})

	p.Feed([]byte("%output %4 hello\\r\\n\n"))

	assert.Equal(t, `%4 hello\r\n`, gotRest)
}
