// Package ring implements the power-of-two-capacity byte ring buffer that
// backs the control-mode protocol parser's incoming byte stream
// (spec.md §4.4, §6). It is a direct Go rendition of shl_ring.c from the
// original wtc source: grow-on-push, peek returns up to two contiguous
// segments when the data wraps, pop is always clamped safe.
package ring

// Buffer is a growable, power-of-two-capacity ring buffer of bytes.
// The zero value is an empty, ready-to-use Buffer.
type Buffer struct {
	buf   []byte
	start int
	end   int
}

// Segment is one contiguous run returned by Peek.
type Segment []byte

// Len reports the number of bytes currently stored.
func (r *Buffer) Len() int {
	if r.buf == nil {
		return 0
	}
	if r.end >= r.start {
		return r.end - r.start
	}
	return len(r.buf) - r.start + r.end
}

// Cap reports the current backing capacity.
func (r *Buffer) Cap() int {
	return len(r.buf)
}

func nextPow2(v int) int {
	if v <= 0 {
		return 4096
	}
	v--
	for i := 1; i < 64; i *= 2 {
		v |= v >> i
	}
	v++
	if v < 4096 {
		return 4096
	}
	return v
}

// grow ensures room for add more bytes, resizing (and un-wrapping) the
// backing array if needed. The "end == start means empty" invariant costs
// one byte of slack, matching the original's accounting exactly.
func (r *Buffer) grow(add int) {
	var free int
	if r.buf == nil {
		free = 0
	} else if r.end < r.start {
		free = r.start - r.end
	} else {
		free = r.start + len(r.buf) - r.end
	}

	if free > add {
		return
	}

	nsize := nextPow2(len(r.buf) + add - free + 1)
	nbuf := make([]byte, nsize)

	if r.buf != nil {
		switch {
		case r.end == r.start:
			// empty; nothing to copy
		case r.end > r.start:
			copy(nbuf, r.buf[r.start:r.end])
			r.end -= r.start
		default:
			n := copy(nbuf, r.buf[r.start:])
			n += copy(nbuf[n:], r.buf[:r.end])
			r.end = n
		}
	}
	r.buf = nbuf
	r.start = 0
}

// Push appends p to the ring, growing the backing array as needed.
func (r *Buffer) Push(p []byte) {
	if len(p) == 0 {
		return
	}
	r.grow(len(p))

	size := len(r.buf)
	if r.start <= r.end {
		l := size - r.end
		if l > len(p) {
			l = len(p)
		}
		copy(r.buf[r.end:], p[:l])
		r.end = (r.end + l) % size
		p = p[l:]
	}
	if len(p) == 0 {
		return
	}
	copy(r.buf[r.end:], p)
	r.end = (r.end + len(p)) % size
}

// Peek returns up to two contiguous segments describing the ring's current
// contents without consuming them. The segments, concatenated, equal the
// full buffer in order.
func (r *Buffer) Peek() []Segment {
	if r.buf == nil || r.end == r.start {
		return nil
	}
	if r.end > r.start {
		return []Segment{r.buf[r.start:r.end]}
	}
	return []Segment{r.buf[r.start:], r.buf[:r.end]}
}

// Pop removes up to len bytes from the front of the ring. Removing more
// bytes than are available is safe and simply empties the ring.
func (r *Buffer) Pop(n int) {
	if n <= 0 || r.buf == nil {
		return
	}
	size := len(r.buf)
	if r.start > r.end {
		l := size - r.start
		if l > n {
			l = n
		}
		r.start = (r.start + l) % size
		n -= l
	}
	if n == 0 {
		return
	}
	l := r.end - r.start
	if l > n {
		l = n
	}
	r.start = (r.start + l) % size
}

// Scanner provides indexed, boundary-crossing access over the (up to two)
// segments Peek returns, so callers like the control-mode protocol parser
// can scan and slice without materializing the whole ring up front
// (spec.md §4.4: "iteration is over at-most-two segments").
type Scanner struct {
	segs []Segment
	len  int
}

// NewScanner builds a Scanner over segs (as returned by Peek).
func NewScanner(segs []Segment) *Scanner {
	s := &Scanner{segs: segs}
	for _, seg := range segs {
		s.len += len(seg)
	}
	return s
}

// Len returns the total number of bytes across all segments.
func (s *Scanner) Len() int { return s.len }

// At returns the byte at absolute offset i (0 <= i < Len()).
func (s *Scanner) At(i int) byte {
	for _, seg := range s.segs {
		if i < len(seg) {
			return seg[i]
		}
		i -= len(seg)
	}
	panic("ring: Scanner.At out of range")
}

// Slice materializes [start, end) into a freshly-allocated byte slice,
// copying across the segment boundary if necessary.
func (s *Scanner) Slice(start, end int) []byte {
	if end < start {
		end = start
	}
	out := make([]byte, 0, end-start)
	pos := 0
	for _, seg := range s.segs {
		segEnd := pos + len(seg)
		lo, hi := start, end
		if lo < pos {
			lo = pos
		}
		if hi > segEnd {
			hi = segEnd
		}
		if lo < hi {
			out = append(out, seg[lo-pos:hi-pos]...)
		}
		pos = segEnd
	}
	return out
}

// IndexByte returns the absolute offset of the first occurrence of b at or
// after start, or -1 if not found.
func (s *Scanner) IndexByte(start int, b byte) int {
	for i := start; i < s.len; i++ {
		if s.At(i) == b {
			return i
		}
	}
	return -1
}

// Bytes returns a freshly-allocated copy of the ring's current contents in
// order. Convenience wrapper over Peek for callers that don't need to avoid
// the copy (the protocol parser uses Peek directly to avoid it).
func (r *Buffer) Bytes() []byte {
	segs := r.Peek()
	out := make([]byte, 0, r.Len())
	for _, s := range segs {
		out = append(out, s...)
	}
	return out
}
