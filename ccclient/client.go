// Package ccclient is the per-session control-mode client (spec.md §4.3):
// it launches `mux -C attach-session ...` (or equivalent) under procsup,
// feeds its stdout through a ctlproto.Parser, and exposes a single
// cc_exec entry point that the reconciler and the public Core use to run
// commands and await their framed result.
//
// Grounded on internal/egg/client.go's Client shape (Dial/Kill/Resize/
// AttachSession/Close) — the same five verbs reappear here as
// Launch/Exec/Resize/Close, minus Dial's gRPC transport (there is no
// generated stub to dial against; control mode is this package's own
// wire protocol, framed by ctlproto).
package ccclient

import (
	"strconv"
	"time"

	"github.com/ehrlich-b/muxmirror/ctlproto"
	"github.com/ehrlich-b/muxmirror/eventloop"
	"github.com/ehrlich-b/muxmirror/internal/dirty"
	"github.com/ehrlich-b/muxmirror/internal/quoting"
	"github.com/ehrlich-b/muxmirror/muxerr"
	"github.com/ehrlich-b/muxmirror/muxlog"
	"github.com/ehrlich-b/muxmirror/procsup"
	"github.com/ehrlich-b/muxmirror/rdavail"
)

// ResultFunc receives a completed command's payload. err is non-nil only
// for supervisor/transport failures; a command that tmux itself rejected
// reports isError=true with err==nil and the server's error text in payload.
type ResultFunc func(payload []byte, isError bool, err error)

// Client is one control-mode connection to the mux server, scoped to a
// single session attach. Only one command may be in flight at a time
// (DESIGN.md's decision on cc_exec concurrency) — Exec returns a Busy
// error rather than queuing a second command.
type Client struct {
	sup    *procsup.Supervisor
	loop   eventloop.Loop
	child  *procsup.Child
	parser *ctlproto.Parser
	fdSrc  eventloop.Source

	pending      ResultFunc
	pendingTimer eventloop.Source
	timeout      time.Duration
	closed       bool

	onNotify func(name, rest string)
	onDirty  func(dirty.Mask)
	onExit   func()
}

// Options configures a Launch call.
type Options struct {
	BinPath    string
	SocketName string
	SocketPath string
	ConfigFile string
	Args       []string // extra args appended after the socket/config flags, e.g. "attach-session", "-t", name
	Env        []string
	Dir        string
	// Timeout bounds every cc_exec call made on the returned Client
	// (spec.md §4.3 step 4, §7: "in cc_exec, timeout kills the child").
	// Defaults to 5s if zero or negative.
	Timeout time.Duration
}

const defaultExecTimeout = 5 * time.Second

// Launch forks the control-mode process under sup, wires its stdout
// through a ctlproto.Parser registered with loop, and returns a ready
// Client. onNotify is called for every recognised non-framing notification
// except %exit, which closes the client instead; onDirty is called with
// the dirty bits each notification sets, ahead of onNotify, matching
// ctlproto.Callbacks' own ordering.
func Launch(sup *procsup.Supervisor, loop eventloop.Loop, opts Options, onNotify func(name, rest string), onDirty func(dirty.Mask), onExit func()) (*Client, error) {
	args := buildArgs(opts)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	c := &Client{sup: sup, loop: loop, timeout: timeout, onNotify: onNotify, onDirty: onDirty, onExit: onExit}

	c.parser = ctlproto.NewParser(ctlproto.Callbacks{
		Dirty: func(bits dirty.Mask) {
			if c.onDirty != nil {
				c.onDirty(bits)
			}
		},
		Notify: func(name, rest string) {
			if name == ctlproto.EvExit {
				c.handleExit()
				return
			}
			if c.onNotify != nil {
				c.onNotify(name, rest)
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
		Unknown: func(line string) {
			muxlog.Debug("ccclient: unrecognised line", "line", line)
		},
	})
	c.parser.ExpectPreamble = true

	child, err := sup.Launch(opts.BinPath, args, opts.Env, opts.Dir, func(st procsup.ExitStatus) {
		c.handleExit()
	})
	if err != nil {
		return nil, err
	}
	c.child = child

	src, err := loop.AddFD(int(child.Stdout.Fd()), eventloop.Readable|eventloop.Hangup, c.onReadable)
	if err != nil {
		return nil, err
	}
	c.fdSrc = src
	return c, nil
}

func buildArgs(opts Options) []string {
	args := []string{"-C"}
	if opts.SocketName != "" {
		args = append(args, "-L", opts.SocketName)
	}
	if opts.SocketPath != "" {
		args = append(args, "-S", opts.SocketPath)
	}
	if opts.ConfigFile != "" {
		args = append(args, "-f", opts.ConfigFile)
	}
	args = append(args, opts.Args...)
	return args
}

func (c *Client) onReadable(fd int, mask eventloop.FDMask) int {
	res, err := rdavail.Read(fd, rdavail.Options{Mode: rdavail.Raw, Sink: rdavail.ToBuffer}, nil, nil)
	if res.N > 0 {
		c.parser.Feed(res.Buf)
	}
	if err != nil {
		muxlog.Warn("ccclient: read", "err", err)
	}
	if mask&eventloop.Hangup != 0 {
		c.handleExit()
	}
	return 0
}

func (c *Client) handleExit() {
	if c.closed {
		return
	}
	c.closed = true
	if c.fdSrc != nil {
		c.loop.Remove(c.fdSrc)
	}
	if c.onExit != nil {
		c.onExit()
	}
}

// Exec sends argv as a single cc_exec command and invokes done once the
// matching %end or %error block closes. It fails with a Busy error if
// another command is already awaiting its result.
func (c *Client) Exec(argv []string, done ResultFunc) error {
	if c.closed {
		return muxerr.New(muxerr.InvalidArg, "ccclient: client closed")
	}
	if c.pending != nil {
		return muxerr.New(muxerr.Busy, "ccclient: a command is already in flight")
	}
	line := quoting.Quote(argv) + "\n"
	if _, err := c.child.Stdin.Write([]byte(line)); err != nil {
		return muxerr.OS("ccclient: write", err)
	}

	if c.loop != nil {
		src, err := c.loop.AddTimer(c.onExecTimeout)
		if err != nil {
			return err
		}
		if err := c.loop.TimerUpdate(src, c.timeout); err != nil {
			c.loop.Remove(src)
			return err
		}
		c.pendingTimer = src
	}

	c.pending = done
	return nil
}

// clearTimer disarms the pending command's timeout timer, if any.
func (c *Client) clearTimer() {
	if c.pendingTimer == nil {
		return
	}
	if c.loop != nil {
		c.loop.Remove(c.pendingTimer)
	}
	c.pendingTimer = nil
}

// onExecTimeout fires when a cc_exec call's timeout elapses before its
// %end/%error block arrives. It kills the child and fails the pending
// callback with muxerr.Timeout (spec.md §7: "in cc_exec, timeout kills
// the child").
func (c *Client) onExecTimeout() int {
	c.pendingTimer = nil
	cb := c.pending
	c.pending = nil
	c.sup.Kill(c.child.Pid)
	if cb != nil {
		cb(nil, false, muxerr.New(muxerr.Timeout, "ccclient: cc_exec timed out"))
	}
	return 0
}

// Resize propagates a virtual terminal size change to the attached
// session via refresh-client, respecting the same single-in-flight rule
// as Exec.
func (c *Client) Resize(w, h int) error {
	size := strconv.Itoa(w) + "x" + strconv.Itoa(h)
	return c.Exec([]string{"refresh-client", "-C", size}, func(payload []byte, isError bool, err error) {
		if err != nil || isError {
			muxlog.Warn("ccclient: resize failed", "err", err, "payload", string(payload))
		}
	})
}

// Busy reports whether a command is currently in flight.
func (c *Client) Busy() bool { return c.pending != nil }

// Close tears the control client down by sending SIGTERM. Its FD source
// is removed once the child exits (handleExit, driven by the hangup or by
// the supervisor's SIGCHLD reap); Close does not block waiting for it.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	return c.sup.Terminate(c.child.Pid)
}

// CloseBounded is Close plus a bounded wait (spec.md §4.2): it sends
// SIGTERM immediately and arms a one-shot timer that escalates to SIGKILL
// if the child has not been reaped (c.closed set by handleExit) by the
// time d elapses. Core.Disconnect uses this for the bootstrap client.
func (c *Client) CloseBounded(d time.Duration) error {
	if err := c.Close(); err != nil {
		return err
	}
	src, err := c.loop.AddTimer(func() int {
		if !c.closed {
			c.sup.Kill(c.child.Pid)
		}
		return 0
	})
	if err != nil {
		return err
	}
	return c.loop.TimerUpdate(src, d)
}
