// Package muxerr defines the error taxonomy shared by every component of
// the core: invalid input from the consumer, busy-while-connected misuse,
// allocation failure, forwarded OS errors, malformed server data, bounded
// waits that time out, and one-shot commands that exit non-zero.
package muxerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error without requiring callers to inspect strings.
type Kind int

const (
	// InvalidArg marks bad input from the consumer: null, out of range,
	// or two mutually-exclusive settings given together.
	InvalidArg Kind = iota
	// Busy marks a setter attempted while connected.
	Busy
	// OutOfMemory marks an allocation failure.
	OutOfMemory
	// OsError wraps an errno forwarded from a system call.
	OsError
	// ParseError marks malformed data received from the mux server.
	ParseError
	// Timeout marks a bounded wait that elapsed.
	Timeout
	// ChildFailed marks a one-shot command that exited non-zero.
	ChildFailed
)

func (k Kind) String() string {
	switch k {
	case InvalidArg:
		return "invalid argument"
	case Busy:
		return "busy"
	case OutOfMemory:
		return "out of memory"
	case OsError:
		return "os error"
	case ParseError:
		return "parse error"
	case Timeout:
		return "timeout"
	case ChildFailed:
		return "child failed"
	default:
		return "unknown"
	}
}

// Error is the single error type every component returns, tagged with a Kind
// so callers can branch with errors.As without string matching.
type Error struct {
	Kind   Kind
	Msg    string
	Errno  error // set when Kind == OsError
	Status int   // set when Kind == ChildFailed: the child's exit code
	Err    error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Errno
}

// New builds a plain Error of the given kind with a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// OS wraps a system-call error as Kind OsError.
func OS(msg string, errno error) error {
	return &Error{Kind: OsError, Msg: msg, Errno: errno}
}

// ChildExit builds a ChildFailed error carrying the exit status.
func ChildExit(status int) error {
	return &Error{Kind: ChildFailed, Msg: fmt.Sprintf("exited with status %d", status), Status: status}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
