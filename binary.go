package gzstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"
)

// File is the underlying byte stream a handle compresses to or
// decompresses from. *os.File, absfs files and *bytes.Buffer all
// qualify. Close, Seek, Sync and Name are discovered by assertion when
// an operation needs them.
type File interface {
	io.Reader
	io.Writer
}

// BinaryFile is a file-like handle over a gzip byte stream. Read
// handles decompress on demand and buffer only what the caller has not
// consumed yet; write handles compress into exactly one gzip member,
// finalized on Close.
//
// A BinaryFile performs no internal locking. Operations on one handle
// must not overlap; distinct handles are fully independent.
type BinaryFile struct {
	name string
	mode Mode
	src  File

	r       *memberReader
	w       *memberWriter
	buf     arena
	scratch []byte

	pos      int64 // uncompressed stream position
	chunk    int
	eof      bool
	closed   bool
	ownsFile bool
}

// NewBinaryFile wraps an already-open stream. The handle closes src on
// Close only when opts.CloseFile is set. mode must not contain 't'.
func NewBinaryFile(src File, mode string, opts *Options) (*BinaryFile, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if m.Text {
		return nil, fmt.Errorf("%w %q: use NewTextFile for text mode", ErrInvalidMode, mode)
	}
	o := opts.withDefaults()
	if err := o.validate(m); err != nil {
		return nil, err
	}

	f := &BinaryFile{
		mode:     m,
		src:      src,
		buf:      newArena(0),
		chunk:    o.ChunkSize,
		ownsFile: o.CloseFile,
	}
	if n, ok := src.(interface{ Name() string }); ok {
		f.name = n.Name()
	}
	if m.Writing() {
		mt := time.Now()
		if o.Mtime != nil {
			mt = *o.Mtime
		}
		f.w, err = newMemberWriter(src, o.flateLevel(), o.headerName(), mt)
		if err != nil {
			return nil, err
		}
	} else {
		f.r = newMemberReader(src, o.ChunkSize)
		f.scratch = make([]byte, o.ChunkSize)
	}
	return f, nil
}

// Name returns the name of the underlying file, if it has one.
func (f *BinaryFile) Name() string { return f.name }

// Mode returns the canonical mode string the handle was opened with.
func (f *BinaryFile) Mode() string { return f.mode.String() }

// Tell returns the current uncompressed stream position.
func (f *BinaryFile) Tell() int64 { return f.pos }

func (f *BinaryFile) readGate() error {
	if f.closed {
		return ErrClosed
	}
	if f.mode.Writing() {
		return ErrNotReadable
	}
	return nil
}

func (f *BinaryFile) writeGate() error {
	if f.closed {
		return ErrClosed
	}
	if !f.mode.Writing() {
		return ErrNotWritable
	}
	return nil
}

// fill decompresses until at least min bytes are buffered or the
// stream ends.
func (f *BinaryFile) fill(min int) error {
	for f.buf.Len() < min && !f.eof {
		n, err := f.r.Read(f.scratch)
		if n > 0 {
			f.buf.Append(f.scratch[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				f.eof = true
				return nil
			}
			return err
		}
	}
	return nil
}

// Read fills p completely unless the stream ends first. It returns
// 0, io.EOF only when no bytes remain.
func (f *BinaryFile) Read(p []byte) (int, error) {
	if err := f.readGate(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := f.fill(len(p)); err != nil {
		return 0, err
	}
	if f.buf.Len() == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.buf.Bytes())
	f.buf.Skip(n)
	f.pos += int64(n)
	return n, nil
}

// ReadAll decompresses and returns everything from the current
// position to the end of the stream.
func (f *BinaryFile) ReadAll() ([]byte, error) {
	if err := f.readGate(); err != nil {
		return nil, err
	}
	for !f.eof {
		if err := f.fill(f.buf.Len() + f.chunk); err != nil {
			return nil, err
		}
	}
	out := f.buf.Next(f.buf.Len())
	f.pos += int64(len(out))
	return out, nil
}

// Peek returns up to n upcoming bytes without consuming them. Peek(0)
// never pulls from the source: it returns whatever is already
// buffered, possibly nothing. For n > 0 the result is shorter than n
// only at end of stream. A negative n pulls at least one byte when the
// buffer is empty and returns everything buffered.
func (f *BinaryFile) Peek(n int) ([]byte, error) {
	if err := f.readGate(); err != nil {
		return nil, err
	}
	need := n
	if n < 0 {
		need = 1
	}
	if need > 0 {
		if err := f.fill(need); err != nil {
			return nil, err
		}
	}
	if n < 0 || n > f.buf.Len() {
		n = f.buf.Len()
	}
	return bytes.Clone(f.buf.Bytes()[:n]), nil
}

// ReadLine returns the next line including its trailing '\n'. With
// limit >= 0 at most limit bytes are returned and the remainder of the
// line stays buffered for the next call. At end of stream a final
// unterminated line is returned as is; after that, io.EOF.
func (f *BinaryFile) ReadLine(limit int) ([]byte, error) {
	if err := f.readGate(); err != nil {
		return nil, err
	}
	for {
		if i := f.buf.IndexByte('\n'); i >= 0 {
			n := i + 1
			if limit >= 0 && limit < n {
				n = limit
			}
			line := f.buf.Next(n)
			f.pos += int64(n)
			return line, nil
		}
		if limit >= 0 && f.buf.Len() >= limit {
			line := f.buf.Next(limit)
			f.pos += int64(limit)
			return line, nil
		}
		if f.eof {
			if f.buf.Len() == 0 {
				return nil, io.EOF
			}
			line := f.buf.Next(f.buf.Len())
			f.pos += int64(len(line))
			return line, nil
		}
		if err := f.fill(f.buf.Len() + 1); err != nil {
			return nil, err
		}
	}
}

// ReadLines reads lines until end of stream, or until at least hint
// bytes of lines have been collected when hint > 0.
func (f *BinaryFile) ReadLines(hint int) ([][]byte, error) {
	var lines [][]byte
	var total int
	for hint <= 0 || total < hint {
		line, err := f.ReadLine(-1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return lines, err
		}
		lines = append(lines, line)
		total += len(line)
	}
	return lines, nil
}

// Lines iterates over the remaining lines of the stream. Iteration
// stops after yielding the first error, if any; a clean end of stream
// yields nothing further.
func (f *BinaryFile) Lines() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			line, err := f.ReadLine(-1)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// Write compresses p. The gzip header is emitted before the first
// compressed byte.
func (f *BinaryFile) Write(p []byte) (int, error) {
	if err := f.writeGate(); err != nil {
		return 0, err
	}
	n, err := f.w.Write(p)
	f.pos += int64(n)
	return n, err
}

// WriteString compresses s.
func (f *BinaryFile) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// WriteLines writes each element verbatim. No line terminators are
// added.
func (f *BinaryFile) WriteLines(lines [][]byte) error {
	for _, line := range lines {
		if _, err := f.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// discard consumes up to n bytes, stopping early at end of stream.
func (f *BinaryFile) discard(n int64) error {
	for n > 0 {
		if f.buf.Len() == 0 {
			if err := f.fill(1); err != nil {
				return err
			}
			if f.buf.Len() == 0 {
				return nil
			}
		}
		step := int64(f.buf.Len())
		if step > n {
			step = n
		}
		f.buf.Skip(int(step))
		f.pos += step
		n -= step
	}
	return nil
}

// drain consumes everything up to end of stream.
func (f *BinaryFile) drain() error {
	for {
		f.pos += int64(f.buf.Skip(f.buf.Len()))
		if f.eof {
			return nil
		}
		if err := f.fill(1); err != nil {
			return err
		}
	}
}

// rewind resets the handle to uncompressed position zero. The
// underlying stream must be an io.Seeker.
func (f *BinaryFile) rewind() error {
	s, ok := f.src.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return &StreamError{Op: "seek", Offset: f.pos, Err: err}
	}
	f.r.reset(f.src)
	f.buf.Reset()
	f.pos = 0
	f.eof = false
	return nil
}

// Rewind repositions a read handle at the start of the stream.
func (f *BinaryFile) Rewind() error {
	if err := f.readGate(); err != nil {
		return err
	}
	return f.rewind()
}

// Seek repositions the stream. Compressed data has no random access,
// so the supported forms are: absolute seeks (backward ones rewind and
// re-decompress; in write mode forward ones fill the gap with zero
// bytes), Seek(0, io.SeekCurrent), and Seek(0, io.SeekEnd) on read
// handles, which drains to the end.
func (f *BinaryFile) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	switch whence {
	case io.SeekCurrent:
		if offset != 0 {
			return f.pos, ErrRelativeSeek
		}
		return f.pos, nil

	case io.SeekEnd:
		if offset != 0 {
			return f.pos, ErrRelativeSeek
		}
		if f.mode.Writing() {
			return f.pos, fmt.Errorf("%w: seek from end in write mode", ErrNotSeekable)
		}
		if err := f.drain(); err != nil {
			return f.pos, err
		}
		return f.pos, nil

	case io.SeekStart:
		if offset < 0 {
			return f.pos, ErrNegativeSeek
		}
		if f.mode.Writing() {
			if offset < f.pos {
				return f.pos, ErrNegativeSeek
			}
			zero := make([]byte, min(int64(f.chunk), offset-f.pos))
			for f.pos < offset {
				step := min(offset-f.pos, int64(len(zero)))
				if _, err := f.Write(zero[:step]); err != nil {
					return f.pos, err
				}
			}
			return f.pos, nil
		}
		if offset < f.pos {
			if err := f.rewind(); err != nil {
				return f.pos, err
			}
		}
		if err := f.discard(offset - f.pos); err != nil {
			return f.pos, err
		}
		return f.pos, nil

	default:
		return f.pos, fmt.Errorf("gzstream: invalid seek whence %d", whence)
	}
}

// Mtime returns the modification time recorded in the gzip header. On
// a read handle the header is parsed on demand; ok is false if the
// stream is empty or the header has not been reached.
func (f *BinaryFile) Mtime() (time.Time, bool) {
	if f.closed {
		return time.Time{}, false
	}
	if f.mode.Writing() {
		return f.w.mtime, true
	}
	if _, ok := f.r.Mtime(); !ok && !f.eof {
		if err := f.fill(1); err != nil {
			return time.Time{}, false
		}
	}
	return f.r.Mtime()
}

// OriginalName returns the original filename recorded in the gzip
// header FNAME field. On a read handle the header is parsed on demand;
// ok is false when the stream is empty or the field is absent.
func (f *BinaryFile) OriginalName() (string, bool) {
	if f.closed {
		return "", false
	}
	if f.mode.Writing() {
		return f.w.name, f.w.name != ""
	}
	if _, ok := f.r.Name(); !ok && !f.eof {
		if err := f.fill(1); err != nil {
			return "", false
		}
	}
	name, ok := f.r.Name()
	return name, ok && name != ""
}

// Flush pushes buffered compressed data to the sink with a deflate
// sync flush, then syncs the sink if it supports Sync. The member
// stays open; no trailer is written. Flush on a read handle is a
// no-op.
func (f *BinaryFile) Flush() error {
	if f.closed {
		return ErrClosed
	}
	if !f.mode.Writing() {
		return nil
	}
	if err := f.w.Flush(); err != nil {
		return err
	}
	if s, ok := f.src.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return &StreamError{Op: "flush", Offset: f.pos, Err: err}
		}
	}
	return nil
}

// Close finalizes a write handle (trailer written exactly once) and
// closes the underlying stream when the handle owns it. Close is
// idempotent.
func (f *BinaryFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	var first error
	if f.mode.Writing() {
		first = f.w.Close()
	}
	if f.ownsFile {
		if c, ok := f.src.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = &StreamError{Op: "close", Offset: f.pos, Err: err}
			}
		}
	}
	return first
}
