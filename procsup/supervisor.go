// Package procsup is the process supervisor (spec.md §4.2): it forks and
// execs the mux binary (as a long-lived control client or a short-lived
// one-shot command), reaps children via a SIGCHLD self-pipe instead of a
// per-child blocking goroutine, and bounds how long a one-shot command is
// allowed to run.
//
// Grounded on internal/egg/server.go's process lifecycle (cmd.Cancel
// sending SIGTERM, cmd.WaitDelay bounding the grace period, exit-code
// classification in the cmd.Wait() error) — adapted from a PTY-attached
// child to plain pipes, since control mode talks to stdin/stdout/stderr
// directly and never allocates a pty (spec.md §4.3).
package procsup

import (
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ehrlich-b/muxmirror/eventloop"
	"github.com/ehrlich-b/muxmirror/muxerr"
	"github.com/ehrlich-b/muxmirror/muxlog"
	"github.com/ehrlich-b/muxmirror/rdavail"
)

// ExitStatus describes how a supervised child terminated.
type ExitStatus struct {
	Pid      int
	Exited   bool
	ExitCode int
	Signaled bool
	Signal   syscall.Signal
}

// Child is a running supervised process with its pipe ends. Stdin is the
// parent's write end of the child's stdin; Stdout/Stderr are the parent's
// (non-blocking) read ends.
type Child struct {
	Cmd    *exec.Cmd
	Pid    int
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// Supervisor tracks live children and dispatches their exit callbacks from
// a single SIGCHLD self-pipe source registered with the event loop — no
// per-child goroutine ever blocks on cmd.Wait().
type Supervisor struct {
	mu       sync.Mutex
	children map[int]*exec.Cmd
	onExit   map[int]func(ExitStatus)

	sigCh        chan os.Signal
	wakeR, wakeW *os.File
	started      bool
}

// NewSupervisor returns an empty Supervisor. Call Start once to wire up
// SIGCHLD delivery before launching any children.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		children: make(map[int]*exec.Cmd),
		onExit:   make(map[int]func(ExitStatus)),
	}
}

// Start installs the SIGCHLD self-pipe and registers its read end with
// loop. This spawns exactly one goroutine for the lifetime of the process:
// the forwarder that turns signal.Notify's delivery channel into a single
// byte on the self-pipe so the reactor can learn of it via an ordinary FD
// readiness callback, rather than the core spawning a goroutine per child.
func (s *Supervisor) Start(loop eventloop.Loop) error {
	if s.started {
		return nil
	}
	r, w, err := os.Pipe()
	if err != nil {
		return muxerr.OS("procsup: self-pipe", err)
	}
	if err := rdavail.SetNonblocking(int(r.Fd())); err != nil {
		r.Close()
		w.Close()
		return err
	}
	s.wakeR, s.wakeW = r, w
	s.sigCh = make(chan os.Signal, 4)
	signal.Notify(s.sigCh, syscall.SIGCHLD)

	go func() {
		for range s.sigCh {
			s.wakeW.Write([]byte{1})
		}
	}()

	_, err = loop.AddFD(int(s.wakeR.Fd()), eventloop.Readable, func(fd int, mask eventloop.FDMask) int {
		var buf [64]byte
		for {
			n, _ := syscall.Read(fd, buf[:])
			if n <= 0 {
				break
			}
		}
		s.reap()
		return 0
	})
	if err != nil {
		return err
	}
	s.started = true
	return nil
}

// Launch forks and execs bin with args/env/dir, wiring plain (non-pty)
// pipes for stdin/stdout/stderr. The returned Child's Stdout/Stderr are
// already set non-blocking, ready for the caller to register with the
// event loop via rdavail.Read. cb is invoked once, from Start's FD
// callback, when the child exits.
func (s *Supervisor) Launch(bin string, args []string, env []string, dir string, cb func(ExitStatus)) (*Child, error) {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, muxerr.OS("procsup: stdin pipe", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, muxerr.OS("procsup: stdout pipe", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, muxerr.OS("procsup: stderr pipe", err)
	}

	cmd := exec.Command(bin, args...)
	cmd.Env = env
	cmd.Dir = dir
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, muxerr.Wrap(muxerr.OsError, "procsup: start "+bin, err)
	}

	// Close the child's ends in the parent; the parent only needs stdinW
	// and the two read ends.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	if err := rdavail.SetNonblocking(int(stdoutR.Fd())); err != nil {
		muxlog.Warn("procsup: stdout non-blocking", "pid", cmd.Process.Pid, "err", err)
	}
	if err := rdavail.SetNonblocking(int(stderrR.Fd())); err != nil {
		muxlog.Warn("procsup: stderr non-blocking", "pid", cmd.Process.Pid, "err", err)
	}

	pid := cmd.Process.Pid
	s.mu.Lock()
	s.children[pid] = cmd
	if cb != nil {
		s.onExit[pid] = cb
	}
	s.mu.Unlock()

	return &Child{Cmd: cmd, Pid: pid, Stdin: stdinW, Stdout: stdoutR, Stderr: stderrR}, nil
}

// Terminate sends SIGTERM to pid; reaping happens asynchronously via the
// next SIGCHLD wakeup once the child actually exits.
func (s *Supervisor) Terminate(pid int) error {
	s.mu.Lock()
	cmd, ok := s.children[pid]
	s.mu.Unlock()
	if !ok {
		return muxerr.New(muxerr.InvalidArg, "procsup: unknown pid")
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return muxerr.OS("procsup: SIGTERM", err)
	}
	return nil
}

// Kill sends SIGKILL to pid, for use after a bounded grace period expires
// (the caller arms that timeout via the event loop; procsup does not track
// deadlines itself since every caller's grace window differs).
func (s *Supervisor) Kill(pid int) error {
	s.mu.Lock()
	cmd, ok := s.children[pid]
	s.mu.Unlock()
	if !ok {
		return muxerr.New(muxerr.InvalidArg, "procsup: unknown pid")
	}
	if err := cmd.Process.Kill(); err != nil {
		return muxerr.OS("procsup: SIGKILL", err)
	}
	return nil
}

// reap drains all exited children with a non-blocking wait loop, matching
// the classic SIGCHLD handler shape: keep reaping until Wait4 reports no
// more zombies.
func (s *Supervisor) reap() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}

		s.mu.Lock()
		cmd, known := s.children[pid]
		cb := s.onExit[pid]
		delete(s.children, pid)
		delete(s.onExit, pid)
		s.mu.Unlock()
		if !known {
			continue
		}
		if cmd.Process != nil {
			cmd.Process.Release()
		}

		status := ExitStatus{Pid: pid}
		switch {
		case ws.Exited():
			status.Exited = true
			status.ExitCode = ws.ExitStatus()
		case ws.Signaled():
			status.Signaled = true
			status.Signal = ws.Signal()
		}
		if cb != nil {
			cb(status)
		}
	}
}
