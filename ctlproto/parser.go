// Package ctlproto implements the incremental parser for tmux's control-mode
// text protocol (spec.md §4.4): line-oriented notifications, and
// %begin/%end|%error framed command results matched by a numeric triple.
//
// The parser is fed raw bytes as they arrive off a control client's stdout
// pipe and drives a fixed callback table as complete lines and blocks are
// recognised — the same struct-of-closures shape internal/egg/vterm.go uses
// for charmbracelet/x/vt's Callbacks, adapted here to dispatch protocol
// events instead of terminal cell updates.
package ctlproto

import (
	"strconv"
	"strings"

	"github.com/ehrlich-b/muxmirror/internal/dirty"
	"github.com/ehrlich-b/muxmirror/ring"
)

// Callbacks is the dispatch table a Parser drives as it recognises
// complete lines and blocks. All fields are optional; nil callbacks are
// skipped.
type Callbacks struct {
	// Notify is called once per recognised notification line other than
	// begin/end/error, with the event name (e.g. "%window-add") and the
	// raw remainder of the line after the name and its following space
	// (empty if there was none).
	Notify func(name, rest string)

	// Result is called once a %begin block's matching %end or %error
	// line has been seen, with the accumulated payload (lines joined by
	// '\n', without a trailing newline) and whether it closed with
	// %error rather than %end. Not called for the swallowed preamble
	// block (see ExpectPreamble).
	Result func(cmdNum int, flags string, payload []byte, isError bool)

	// Dirty is called with the bits a recognised notification sets,
	// per the fixed event -> mask table (spec.md §4.6). It is called in
	// addition to, and immediately before, Notify.
	Dirty func(bits dirty.Mask)

	// Unknown is called for a line whose first token does not match any
	// recognised name. The parser discards the line and resynchronises
	// on the next one.
	Unknown func(line string)
}

// Parser is an incremental, ring-buffer-driven control-mode protocol
// parser. One Parser is owned by exactly one control client's byte stream;
// its ExpectPreamble flag and in-flight block state are therefore
// per-client, not global.
type Parser struct {
	rb ring.Buffer
	cb Callbacks

	// ExpectPreamble, when set, causes the next %begin/%end|%error block
	// to be swallowed silently and the flag cleared — tmux emits a free
	// preamble block immediately after a control client attaches, with
	// no corresponding cc_exec request to match it against.
	ExpectPreamble bool

	inBlock bool
	block   blockState
}

type blockState struct {
	num       int
	flags     string
	triple    string // the %begin line's "<time> <cmd-number> <flags>"
	preamble  bool
	payload   []byte
	wroteLine bool
}

// NewParser returns a ready-to-use Parser. Set ExpectPreamble to true
// before feeding data from a freshly attached control client.
func NewParser(cb Callbacks) *Parser {
	return &Parser{cb: cb}
}

// Feed appends newly read bytes to the parser's ring buffer and drains as
// many complete lines as are available, dispatching callbacks as it goes.
func (p *Parser) Feed(data []byte) {
	p.rb.Push(data)
	p.drain()
}

// drain consumes complete newline-terminated lines from the ring until none
// remain, feeding each to the line handler in turn.
func (p *Parser) drain() {
	for {
		segs := p.rb.Peek()
		if len(segs) == 0 {
			return
		}
		sc := ring.NewScanner(segs)
		nl := sc.IndexByte(0, '\n')
		if nl < 0 {
			return
		}
		line := sc.Slice(0, nl)
		// Tolerate a trailing \r (control mode is sometimes relayed over
		// channels that preserve CRLF).
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		p.rb.Pop(nl + 1)
		p.handleLine(string(line))
	}
}

func (p *Parser) handleLine(line string) {
	if p.inBlock {
		if name, rest, ok := splitName(line); ok && (name == evEnd || name == evError) {
			if _, flags, ok := parseTriple(rest); ok && rest == p.block.triple {
				p.closeBlock(flags, name == evError)
				return
			}
		}
		if p.block.wroteLine {
			p.block.payload = append(p.block.payload, '\n')
		}
		p.block.payload = append(p.block.payload, line...)
		p.block.wroteLine = true
		return
	}

	name, rest, ok := splitName(line)
	if !ok {
		if p.cb.Unknown != nil {
			p.cb.Unknown(line)
		}
		return
	}

	if name == evBegin {
		num, flags, ok := parseTriple(rest)
		if !ok {
			if p.cb.Unknown != nil {
				p.cb.Unknown(line)
			}
			return
		}
		p.inBlock = true
		p.block = blockState{num: num, flags: flags, triple: rest, preamble: p.ExpectPreamble}
		p.ExpectPreamble = false
		return
	}
	if name == evEnd || name == evError {
		// A close line with no open block has nothing to close.
		return
	}

	if bits, ok := dirtyBits[name]; ok && p.cb.Dirty != nil {
		p.cb.Dirty(bits)
	}
	if p.cb.Notify != nil {
		p.cb.Notify(name, rest)
	}
}

func (p *Parser) closeBlock(flags string, isError bool) {
	b := p.block
	p.inBlock = false
	p.block = blockState{}
	if b.preamble {
		return
	}
	if p.cb.Result != nil {
		p.cb.Result(b.num, flags, b.payload, isError)
	}
}

// splitName splits a line into its leading "%name" token and the remainder
// following the first space, and reports whether the token is a name this
// parser recognises.
func splitName(line string) (name, rest string, ok bool) {
	if line == "" || line[0] != '%' {
		return "", "", false
	}
	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		name = line
	} else {
		name = line[:sp]
		rest = line[sp+1:]
	}
	_, known := knownNames[name]
	return name, rest, known
}

// parseTriple parses a %begin/%end/%error line's "<time> <cmd-number>
// <flags>" remainder. A %end/%error line closes the open block only when
// all three fields equal those of its %begin line; otherwise it is payload.
func parseTriple(rest string) (num int, flags string, ok bool) {
	fields := strings.SplitN(rest, " ", 3)
	if len(fields) < 2 {
		return 0, "", false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, "", false
	}
	if len(fields) == 3 {
		flags = fields[2]
	}
	return n, flags, true
}
