// Package reconcile is the state reconciler (spec.md §4.5): it diffs the
// in-process model against the server's own listings (list-sessions,
// list-windows, list-panes, list-clients) and drives the observer
// callbacks for whatever changed, rather than trusting notifications to
// carry full state themselves.
//
// Grounded on original_source/src/tmux.c's listing consumers (field
// formats, tolerance for duplicate rows during rapid transitions) and
// internal/timeline/loop.go's single-unit-of-work dispatch shape, reused
// here as the refresh.DispatchFunc the scheduler drives.
package reconcile

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/ehrlich-b/muxmirror/muxerr"
)

const fieldSep = "\t"

// splitRows runs a bufio.Scanner over payload (the accumulated %begin/%end
// block body), the same line-at-a-time habit internal/agent/stream.go
// uses for subprocess output, tolerating a trailing blank line.
func splitRows(payload []byte) []string {
	var rows []string
	sc := bufio.NewScanner(strings.NewReader(string(payload)))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		rows = append(rows, line)
	}
	return rows
}

// parseID strips a single-character sigil ('$', '@', '%') and parses the
// remaining digits, tolerating the sigil's absence.
func parseID(s string, sigil byte) (int, error) {
	if s == "" {
		return 0, muxerr.New(muxerr.ParseError, "reconcile: empty id field")
	}
	if s[0] == sigil {
		s = s[1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, muxerr.Wrap(muxerr.ParseError, "reconcile: bad id "+s, err)
	}
	return n, nil
}

func parseBool(s string) bool { return s == "1" }

func parseIntField(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
