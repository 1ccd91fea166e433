// Package rdavail reads everything immediately available on a non-blocking
// file descriptor, per spec.md §6's read-available utility. It exposes the
// same Mode x Sink combinations as the original's read_available, but as two
// small Go enums combined in a struct instead of an OR'd bitfield — per the
// spec's own §9 design note ("Model as two explicit enums... combined in a
// struct, rejecting invalid combinations at the type level").
package rdavail

import (
	"bytes"
	"syscall"

	"github.com/ehrlich-b/muxmirror/muxerr"
	"github.com/ehrlich-b/muxmirror/ring"
)

// Mode selects whether read data is discarded, treated as a zero-terminated
// C string (embedded zero bytes rewritten to 0x01, a trailing zero added),
// or passed through unprocessed.
type Mode int

const (
	Discard Mode = iota
	CString
	Raw
)

// Sink selects where processed data is written.
type Sink int

const (
	ToBuffer Sink = iota
	ToRing
)

// Options combines a Mode and a Sink. The zero value is Discard+ToBuffer.
type Options struct {
	Mode Mode
	Sink Sink
}

const readChunk = 4096

// Read performs one read_available pass over fd.
//
//   - Discard: bytes are read and thrown away; Result.N holds the total read.
//   - CString+ToBuffer: buf (may be nil) is the prior contents; the result's
//     Buf is buf with the newly read bytes appended, zero bytes inside the
//     new data rewritten to 0x01, and exactly one trailing zero byte added.
//     N excludes the trailing zero.
//   - CString+ToRing: the same rewriting is applied, but bytes are pushed
//     onto r (existing ring contents are untouched) and a trailing zero is
//     pushed on every call. N includes the trailing zero pushed.
//   - Raw: passes bytes through unprocessed to either sink.
//
// A read that returns EAGAIN/EWOULDBLOCK ends the loop without error — the
// fd simply has no more data right now. EINTR is retried. Any other errno is
// returned wrapped as muxerr.OsError; whatever was read before the failure
// is still reflected in Result (matching the original's documented partial-
// failure behavior for the Ring sink).
type Result struct {
	N   int
	Buf []byte // set when Sink == ToBuffer and Mode != Discard
}

func Read(fd int, opts Options, buf []byte, r *ring.Buffer) (Result, error) {
	var total int
	chunk := make([]byte, readChunk)

	var pending []byte // unflushed bytes for the non-discard path
	for {
		n, err := syscall.Read(fd, chunk)
		if n > 0 {
			total += n
			if opts.Mode != Discard {
				pending = append(pending, chunk[:n]...)
				if opts.Sink == ToRing {
					r.Push(rewriteForMode(chunk[:n], opts.Mode))
					pending = nil
				}
			}
		}
		if err == nil {
			if n == 0 {
				break
			}
			continue
		}
		if err == syscall.EINTR {
			continue
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			break
		}
		return finish(opts, total, buf, pending, r), muxerr.OS("read", err)
	}

	return finish(opts, total, buf, pending, r), nil
}

func finish(opts Options, total int, buf []byte, pending []byte, r *ring.Buffer) Result {
	switch {
	case opts.Mode == Discard:
		return Result{N: total}
	case opts.Sink == ToRing:
		if opts.Mode == CString {
			r.Push([]byte{0})
			return Result{N: total + 1}
		}
		return Result{N: total}
	default: // ToBuffer
		out := append(append([]byte(nil), buf...), rewriteForMode(pending, opts.Mode)...)
		if opts.Mode == CString {
			out = append(out, 0)
		}
		return Result{N: total, Buf: out}
	}
}

// rewriteForMode applies the CString embedded-zero rewrite to p. The
// trailing terminator itself is pushed once, in finish, not per chunk.
func rewriteForMode(p []byte, mode Mode) []byte {
	if mode != CString {
		return p
	}
	return bytes.ReplaceAll(p, []byte{0}, []byte{1})
}

// SetNonblocking marks fd for non-blocking reads, as the process supervisor
// does to every parent-side stdout/stderr descriptor per spec.md §4.2.
func SetNonblocking(fd int) error {
	if err := syscall.SetNonblock(fd, true); err != nil {
		return muxerr.OS("set nonblocking", err)
	}
	return nil
}
