// Package quoting implements cc_exec's argv-to-line quoting rule and its
// inverse (spec.md §4.3, testable property P6): every argument is wrapped
// in double quotes, with embedded double quotes escaped as \" and embedded
// newlines escaped as \n (the two-character literal, not a raw newline).
package quoting

import (
	"fmt"
	"strings"

	"github.com/ehrlich-b/muxmirror/muxerr"
)

// Quote serialises argv into the single line cc_exec writes to the control
// client's stdin.
func Quote(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = quoteOne(a)
	}
	return strings.Join(parts, " ")
}

func quoteOne(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Unquote parses a line produced by Quote back into argv, recovering what
// cc_exec sent (the inverse of Quote for property P6).
func Unquote(line string) ([]string, error) {
	var argv []string
	i := 0
	n := len(line)
	for i < n {
		for i < n && line[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}
		if line[i] != '"' {
			return nil, muxerr.New(muxerr.ParseError, fmt.Sprintf("expected '\"' at offset %d", i))
		}
		i++
		var b strings.Builder
		closed := false
		for i < n {
			c := line[i]
			if c == '"' {
				closed = true
				i++
				break
			}
			if c == '\\' && i+1 < n {
				switch line[i+1] {
				case '"':
					b.WriteByte('"')
					i += 2
					continue
				case 'n':
					b.WriteByte('\n')
					i += 2
					continue
				}
			}
			b.WriteByte(c)
			i++
		}
		if !closed {
			return nil, muxerr.New(muxerr.ParseError, "unterminated quoted argument")
		}
		argv = append(argv, b.String())
	}
	return argv, nil
}
