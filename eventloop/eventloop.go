// Package eventloop defines the Loop interface the core depends on (spec.md
// §6's injected "Event loop" collaborator) and ships one reference
// implementation so the module is runnable standalone. The core never
// assumes this implementation — any Loop satisfying the interface works.
package eventloop

import "time"

// FDMask selects which conditions on a descriptor wake its callback.
type FDMask int

const (
	Readable FDMask = 1 << iota
	Writable
	Hangup
)

// Source is an opaque registration handle returned by AddFD/AddTimer.
type Source interface{}

// FDCallback is invoked when a registered descriptor becomes ready. readyMask
// reports which of the registered conditions fired. Per spec.md §6, a
// non-zero return aborts the current loop tick; the loop itself keeps running.
type FDCallback func(fd int, readyMask FDMask) int

// TimerCallback is invoked when a registered timer fires.
type TimerCallback func() int

// Loop is the reactor the core runs inside. The core is single-threaded and
// cooperative (spec.md §5): it never spawns goroutines of its own beyond the
// one-time SIGCHLD self-pipe plumbing, and all state mutation happens inside
// callbacks this interface delivers.
type Loop interface {
	// AddFD registers fd for the given conditions. cb fires from the loop's
	// own goroutine/thread whenever fd is ready.
	AddFD(fd int, mask FDMask, cb FDCallback) (Source, error)
	// AddTimer registers a one-shot timer with no initial deadline; call
	// TimerUpdate to arm it. cb fires once per expiry.
	AddTimer(cb TimerCallback) (Source, error)
	// TimerUpdate (re)arms a timer source to fire after d. d <= 0 disarms it.
	TimerUpdate(s Source, d time.Duration) error
	// Remove unregisters a source created by AddFD or AddTimer.
	Remove(s Source) error
}
