package gzstream

import "bytes"

// defaultCompactAt is the minimum dead prefix, in bytes, before the
// arena considers shifting live data back to index 0.
const defaultCompactAt = 64 * 1024

// arena is a growable byte buffer addressed by an offset to the first
// valid byte. Consuming bytes advances off instead of moving data;
// live bytes are copied back to index 0 only when the dead prefix
// exceeds both compactAt and half the capacity, which bounds the
// amortized copy cost per consumed byte.
type arena struct {
	buf       []byte
	off       int
	compactAt int
}

func newArena(compactAt int) arena {
	if compactAt <= 0 {
		compactAt = defaultCompactAt
	}
	return arena{compactAt: compactAt}
}

// Len returns the number of valid bytes.
func (a *arena) Len() int { return len(a.buf) - a.off }

// Bytes returns a view of the valid bytes. The view is invalidated by
// the next Append, Skip or Reset.
func (a *arena) Bytes() []byte { return a.buf[a.off:] }

// Append adds p to the end of the buffer.
func (a *arena) Append(p []byte) {
	a.maybeCompact()
	a.buf = append(a.buf, p...)
}

// Skip consumes up to n valid bytes and returns the number consumed.
func (a *arena) Skip(n int) int {
	if n > a.Len() {
		n = a.Len()
	}
	a.off += n
	if a.off == len(a.buf) {
		a.buf = a.buf[:0]
		a.off = 0
	}
	return n
}

// Next consumes up to n valid bytes and returns them as a copy that
// survives later arena operations.
func (a *arena) Next(n int) []byte {
	if n > a.Len() {
		n = a.Len()
	}
	out := bytes.Clone(a.buf[a.off : a.off+n])
	a.Skip(n)
	return out
}

// IndexByte returns the index of c within the valid bytes, or -1.
func (a *arena) IndexByte(c byte) int {
	return bytes.IndexByte(a.buf[a.off:], c)
}

// Reset discards all content but keeps the allocation.
func (a *arena) Reset() {
	a.buf = a.buf[:0]
	a.off = 0
}

func (a *arena) maybeCompact() {
	if a.off == 0 {
		return
	}
	if a.off == len(a.buf) {
		a.buf = a.buf[:0]
		a.off = 0
		return
	}
	if a.off < a.compactAt || a.off*2 < cap(a.buf) {
		return
	}
	n := copy(a.buf, a.buf[a.off:])
	a.buf = a.buf[:n]
	a.off = 0
}
