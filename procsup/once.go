package procsup

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/ehrlich-b/muxmirror/muxerr"
)

// RunOnce runs bin with args to completion, bounded by timeout, and
// returns its combined stdout. It is grounded directly on
// internal/egg/server.go's exec.CommandContext + cmd.Cancel (SIGTERM) +
// cmd.WaitDelay pattern — the one-shot sibling of Launch, used for queries
// made before any long-lived control client exists (checkVersion's `-V`).
//
// Unlike Launch, RunOnce blocks the caller: one-shot commands are short
// (a single tmux query) and the supervisor has nothing useful to do while
// waiting, so there is no reactor integration to bypass here.
func RunOnce(bin string, args []string, env []string, dir string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = env
	cmd.Dir = dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 2 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return out.Bytes(), muxerr.New(muxerr.Timeout, "procsup: "+bin+" timed out")
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return out.Bytes(), muxerr.ChildExit(exitErr.ExitCode())
		}
		return out.Bytes(), muxerr.Wrap(muxerr.OsError, "procsup: run "+bin, err)
	}
	return out.Bytes(), nil
}
