// Package muxmirror is the public entry point: it composes model.Core
// with the process supervisor, the control-mode client, the state
// reconciler and the refresh scheduler into the single Core type a
// consumer drives (spec.md §2's "in-process object model", SPEC_FULL.md
// §4.1).
package muxmirror

import (
	"strconv"
	"time"

	"github.com/ehrlich-b/muxmirror/ccclient"
	"github.com/ehrlich-b/muxmirror/eventloop"
	"github.com/ehrlich-b/muxmirror/internal/dirty"
	"github.com/ehrlich-b/muxmirror/model"
	"github.com/ehrlich-b/muxmirror/muxerr"
	"github.com/ehrlich-b/muxmirror/muxlog"
	"github.com/ehrlich-b/muxmirror/procsup"
	"github.com/ehrlich-b/muxmirror/reconcile"
	"github.com/ehrlich-b/muxmirror/refresh"
)

// Core is the consumer-facing handle. Everything it exposes delegates to
// model.Core for data and config, and to the supervisor/reconciler/
// scheduler trio for the connected lifecycle.
type Core struct {
	model *model.Core

	loop  eventloop.Loop
	sup   *procsup.Supervisor
	sched *refresh.Scheduler
	recon *reconcile.Reconciler

	// cc is the bootstrap control-mode client attached to the reserved
	// temporary session (model.ReservedTempSessionName). Every real session
	// gets its own control-mode client, launched by the reconciler as a side
	// effect of its new_session closure (spec.md §4.5.1 step 6, §4.5.5); the
	// reconciler moves its listing commands to those clients, while this
	// field keeps pointing at the bootstrap client.
	cc *ccclient.Client
}

// New returns a disconnected Core with the model's stated defaults.
func New() *Core {
	return &Core{model: model.New()}
}

// Ref increments the reference count.
func (c *Core) Ref() { c.model.Ref() }

// Unref decrements the reference count, disconnecting first if this was
// the last reference and the core is still connected (spec.md §4.1).
func (c *Core) Unref() {
	if c.model.Unref() && c.model.IsConnected() {
		if err := c.Disconnect(); err != nil {
			muxlog.Warn("muxcore: disconnect on final unref", "err", err)
		}
	}
}

func (c *Core) SetBinPath(path string) error    { return c.model.SetBinPath(path) }
func (c *Core) SetSocketName(name string) error { return c.model.SetSocketName(name) }
func (c *Core) SetSocketPath(path string) error { return c.model.SetSocketPath(path) }
func (c *Core) SetConfigFile(path string) error { return c.model.SetConfigFile(path) }
func (c *Core) SetTimeout(ms int) error         { return c.model.SetTimeout(ms) }

// SetCallbacks installs the observer hooks (spec.md §4.6). Fails with
// Busy while connected, same as the other setters.
func (c *Core) SetCallbacks(cb model.Callbacks) error {
	if c.model.IsConnected() {
		return muxerr.New(muxerr.Busy, "cannot change callbacks while connected")
	}
	c.model.Callbacks = cb
	return nil
}

// SetSize changes the virtual terminal size immediately, replaying it to
// the live control client (spec.md §4.1/§4.3).
func (c *Core) SetSize(w, h int) error {
	if err := c.model.SetSize(w, h); err != nil {
		return err
	}
	if c.cc != nil {
		return c.cc.Resize(w, h)
	}
	return nil
}

func (c *Core) IsConnected() bool             { return c.model.IsConnected() }
func (c *Core) RootSession() *model.Session   { return c.model.RootSession() }
func (c *Core) SessionIDs() []int             { return c.model.SessionIDs() }
func (c *Core) Session(id int) *model.Session { return c.model.Sessions[id] }

// Connect verifies the configured binary's version, starts the process
// supervisor, launches the temporary control client and schedules the
// first full reconciliation pass (spec.md §2/§4.1).
func (c *Core) Connect(loop eventloop.Loop) error {
	if c.model.IsConnected() {
		return muxerr.New(muxerr.Busy, "already connected")
	}
	if c.model.BinPath() == "" {
		return muxerr.New(muxerr.InvalidArg, "no binary path configured")
	}

	if err := checkVersion(c.model.BinPath()); err != nil {
		return err
	}

	sup := procsup.NewSupervisor()
	if err := sup.Start(loop); err != nil {
		return err
	}

	timeout := timeoutDuration(c.model.TimeoutMS())

	cc, err := ccclient.Launch(sup, loop, ccclient.Options{
		BinPath:    c.model.BinPath(),
		SocketName: c.model.SocketName(),
		SocketPath: c.model.SocketPath(),
		ConfigFile: c.model.ConfigFile(),
		Args:       []string{"new-session", "-s", model.ReservedTempSessionName},
		Timeout:    timeout,
	}, c.onNotify, c.onDirty, c.onClientExit)
	if err != nil {
		return err
	}

	w, h := c.model.Size()
	if err := cc.Resize(w, h); err != nil {
		cc.Close()
		return err
	}

	launch := func(sess *model.Session) (reconcile.SessionClient, error) {
		client, err := ccclient.Launch(sup, loop, ccclient.Options{
			BinPath:    c.model.BinPath(),
			SocketName: c.model.SocketName(),
			SocketPath: c.model.SocketPath(),
			ConfigFile: c.model.ConfigFile(),
			Args:       []string{"attach-session", "-t", "$" + strconv.Itoa(sess.ID)},
			Timeout:    timeout,
		}, c.onNotify, c.onDirty, c.onClientExit)
		if err != nil {
			return nil, err
		}
		cw, ch := c.model.Size()
		if err := client.Resize(cw, ch); err != nil {
			muxlog.Warn("muxcore: resize new session client", "session", sess.ID, "err", err)
		}
		return client, nil
	}

	recon := reconcile.New(c.model, cc, cc, launch)
	sched, err := refresh.NewScheduler(loop, recon.Dispatch)
	if err != nil {
		cc.Close()
		return err
	}

	c.loop = loop
	c.sup = sup
	c.cc = cc
	c.recon = recon
	c.sched = sched

	c.model.SetConnected(true)
	c.sched.MarkDirty(dirty.Sessions)
	return nil
}

func (c *Core) onDirty(bits dirty.Mask) {
	if c.sched != nil {
		c.sched.MarkDirty(bits)
	}
}

func (c *Core) onNotify(name, rest string) {
	muxlog.Debug("muxcore: notification", "name", name, "rest", rest)
}

func (c *Core) onClientExit() {
	muxlog.Warn("muxcore: control client exited")
}

// Disconnect tears down the control client and the refresh scheduler.
// The supervisor's SIGCHLD reap finishes reclaiming the child process
// asynchronously; Disconnect does not block on it.
func (c *Core) Disconnect() error {
	if !c.model.IsConnected() {
		return muxerr.New(muxerr.InvalidArg, "not connected")
	}
	if c.sched != nil {
		c.sched.Close()
		c.sched = nil
	}
	if c.cc != nil {
		if err := c.cc.CloseBounded(timeoutDuration(c.model.TimeoutMS())); err != nil {
			muxlog.Warn("muxcore: close control client", "err", err)
		}
		c.cc = nil
	}
	c.recon = nil
	c.model.SetConnected(false)
	return nil
}

func timeoutDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
