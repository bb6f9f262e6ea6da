package gzstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode/utf8"
)

// NewlineMode selects how line terminators are translated and where
// lines end. The zero value is universal mode.
type NewlineMode int

const (
	// NewlineUniversal translates "\r\n" and "\r" to "\n" on read;
	// writes pass through unchanged.
	NewlineUniversal NewlineMode = iota
	// NewlinePassthrough performs no translation; any of "\n", "\r" or
	// "\r\n" terminates a line and is returned as found.
	NewlinePassthrough
	// NewlineLF performs no translation; lines end at "\n".
	NewlineLF
	// NewlineCR ends lines at "\r" and rewrites "\n" to "\r" on write.
	NewlineCR
	// NewlineCRLF ends lines at "\r\n" and rewrites "\n" to "\r\n" on
	// write.
	NewlineCRLF
)

// ParseNewlineMode maps a terminator literal to its mode: "universal"
// for translation, "" for passthrough, or one of "\n", "\r", "\r\n".
func ParseNewlineMode(s string) (NewlineMode, error) {
	switch s {
	case "universal":
		return NewlineUniversal, nil
	case "":
		return NewlinePassthrough, nil
	case "\n":
		return NewlineLF, nil
	case "\r":
		return NewlineCR, nil
	case "\r\n":
		return NewlineCRLF, nil
	}
	return 0, fmt.Errorf("gzstream: invalid newline mode %q", s)
}

func (m NewlineMode) String() string {
	switch m {
	case NewlineUniversal:
		return "universal"
	case NewlinePassthrough:
		return "passthrough"
	case NewlineLF:
		return `\n`
	case NewlineCR:
		return `\r`
	case NewlineCRLF:
		return `\r\n`
	}
	return fmt.Sprintf("NewlineMode(%d)", int(m))
}

// TextFile is a character-oriented handle over a gzip stream: a
// BinaryFile plus incremental decoding, newline handling and
// cookie-based seeking. Positions and counts are in characters, except
// Seek/Tell which exchange opaque cookies.
//
// Like BinaryFile, a TextFile performs no internal locking.
type TextFile struct {
	bin     *BinaryFile
	mode    Mode
	dec     decoder
	newline NewlineMode

	carry   decodeCarry
	text    string // decoded, not yet returned
	raw     []byte
	written int64 // characters written
	cookies *cookieCache
	closed  bool
}

// NewTextFile wraps an already-open stream in a text handle. mode must
// not contain 'b'.
func NewTextFile(src File, mode string, opts *Options) (*TextFile, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if m.Binary {
		return nil, fmt.Errorf("%w %q: use NewBinaryFile for binary mode", ErrInvalidMode, mode)
	}
	o := opts.withDefaults()
	dec, err := newDecoder(o.Encoding, o.Errors)
	if err != nil {
		return nil, err
	}
	if o.Newline < NewlineUniversal || o.Newline > NewlineCRLF {
		return nil, fmt.Errorf("gzstream: invalid newline mode %d", int(o.Newline))
	}
	inner := m
	inner.Text = false
	bo := o
	bo.Encoding, bo.Errors, bo.Newline = "", errorsStrict, NewlineUniversal
	bin, err := NewBinaryFile(src, inner.String(), &bo)
	if err != nil {
		return nil, err
	}
	return &TextFile{
		bin:     bin,
		mode:    m,
		dec:     dec,
		newline: o.Newline,
		raw:     make([]byte, bin.chunk),
		cookies: newCookieCache(o.CookieLimit),
	}, nil
}

// Name returns the name of the underlying file, if it has one.
func (f *TextFile) Name() string { return f.bin.name }

// Mode returns the canonical mode string the handle was opened with.
func (f *TextFile) Mode() string { return f.mode.String() }

// Buffer exposes the underlying binary handle. Mixing reads between
// the two layers desynchronizes text positions; use it for metadata
// such as Mtime.
func (f *TextFile) Buffer() *BinaryFile { return f.bin }

// Encoding returns the canonical name of the character encoding.
func (f *TextFile) Encoding() string { return f.dec.name }

// Errors returns the conversion error policy.
func (f *TextFile) Errors() string { return f.dec.policy }

// Newline returns the newline mode.
func (f *TextFile) Newline() NewlineMode { return f.newline }

func (f *TextFile) readGate() error {
	if f.closed {
		return ErrClosed
	}
	if f.mode.Writing() {
		return ErrNotReadable
	}
	return nil
}

func (f *TextFile) writeGate() error {
	if f.closed {
		return ErrClosed
	}
	if !f.mode.Writing() {
		return ErrNotWritable
	}
	return nil
}

// exhausted reports whether no further text can be produced.
func (f *TextFile) exhausted() bool {
	return f.bin.eof && f.bin.buf.Len() == 0 &&
		len(f.carry.pending) == 0 && !f.carry.trailingCR
}

// translateNewlines applies the read-side translation for one decoded
// chunk. In universal and passthrough modes a trailing '\r' is held
// back until the next chunk shows whether it starts a "\r\n" pair;
// final releases it.
func translateNewlines(s string, mode NewlineMode, final bool) (string, bool) {
	switch mode {
	case NewlineUniversal:
		hold := false
		if !final && strings.HasSuffix(s, "\r") {
			s = s[:len(s)-1]
			hold = true
		}
		s = strings.ReplaceAll(s, "\r\n", "\n")
		return strings.ReplaceAll(s, "\r", "\n"), hold
	case NewlinePassthrough:
		if !final && strings.HasSuffix(s, "\r") {
			return s[:len(s)-1], true
		}
		return s, false
	default:
		return s, false
	}
}

// fillMore pulls one chunk through the byte layer, the decoder and the
// newline translator, appending the result to the text buffer. Before
// reading it passively checkpoints the current position, so a later
// seek to a cookie minted here can succeed without an explicit Tell.
func (f *TextFile) fillMore() error {
	if cookie := f.cookieAt(); cookie != 0 {
		f.cookies.putIfAbsent(cookie, f.checkpoint())
	}
	n, err := f.bin.Read(f.raw)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	final := f.bin.eof && f.bin.buf.Len() == 0
	s, rest, err := f.dec.Decode(f.carry.pending, f.raw[:n], final)
	if err != nil {
		return err
	}
	if f.carry.trailingCR {
		s = "\r" + s
	}
	out, hold := translateNewlines(s, f.newline, final)
	f.carry = decodeCarry{pending: rest, trailingCR: hold}
	f.text += out
	return nil
}

// fillRunes produces at least n characters of buffered text, or
// everything when n < 0.
func (f *TextFile) fillRunes(n int) error {
	for !f.exhausted() {
		if n >= 0 && utf8.RuneCountInString(f.text) >= n {
			return nil
		}
		if err := f.fillMore(); err != nil {
			return err
		}
	}
	return nil
}

// splitRunes cuts s after n characters.
func splitRunes(s string, n int) (head, tail string) {
	cnt := 0
	for i := range s {
		if cnt == n {
			return s[:i], s[i:]
		}
		cnt++
	}
	return s, ""
}

// Read returns up to n characters, short only at end of stream. n < 0
// reads everything remaining; n == 0 returns immediately. At end of
// stream with nothing buffered, Read returns "", io.EOF.
func (f *TextFile) Read(n int) (string, error) {
	if err := f.readGate(); err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if err := f.fillRunes(n); err != nil {
		return "", err
	}
	if f.text == "" {
		return "", io.EOF
	}
	if n < 0 {
		out := f.text
		f.text = ""
		return out, nil
	}
	head, tail := splitRunes(f.text, n)
	f.text = tail
	return head, nil
}

// ReadAll returns everything from the current position to the end of
// the stream, "" if already there.
func (f *TextFile) ReadAll() (string, error) {
	s, err := f.Read(-1)
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	return s, err
}

// findTerminator locates the first line terminator for the mode,
// returning its byte index and length, or -1.
func findTerminator(s string, mode NewlineMode) (int, int) {
	switch mode {
	case NewlineCR:
		if i := strings.IndexByte(s, '\r'); i >= 0 {
			return i, 1
		}
	case NewlineCRLF:
		if i := strings.Index(s, "\r\n"); i >= 0 {
			return i, 2
		}
	case NewlinePassthrough:
		if i := strings.IndexAny(s, "\r\n"); i >= 0 {
			if s[i] == '\r' && i+1 < len(s) && s[i+1] == '\n' {
				return i, 2
			}
			return i, 1
		}
	default: // universal and LF modes terminate on '\n'
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			return i, 1
		}
	}
	return -1, 0
}

// ReadLine returns the next line including its terminator. With
// limit >= 0 at most limit characters are returned and the rest of the
// line stays buffered. A final unterminated line is returned as is;
// after the last line, io.EOF.
func (f *TextFile) ReadLine(limit int) (string, error) {
	if err := f.readGate(); err != nil {
		return "", err
	}
	for {
		if i, tlen := findTerminator(f.text, f.newline); i >= 0 {
			line := f.text[:i+tlen]
			if limit >= 0 {
				if head, _ := splitRunes(line, limit); len(head) < len(line) {
					line = head
				}
			}
			f.text = f.text[len(line):]
			return line, nil
		}
		if limit >= 0 && utf8.RuneCountInString(f.text) >= limit {
			head, tail := splitRunes(f.text, limit)
			f.text = tail
			return head, nil
		}
		if f.exhausted() {
			if f.text == "" {
				return "", io.EOF
			}
			line := f.text
			f.text = ""
			return line, nil
		}
		if err := f.fillMore(); err != nil {
			return "", err
		}
	}
}

// ReadLines reads lines until end of stream, or until at least hint
// characters of lines have been collected when hint > 0.
func (f *TextFile) ReadLines(hint int) ([]string, error) {
	var lines []string
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
		total += utf8.RuneCountInString(line)
	}
	return lines, nil
}

// Lines iterates over the remaining lines. Iteration stops after
// yielding the first error, if any.
func (f *TextFile) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := f.ReadLine(-1)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield("", err)
				}
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// Write encodes and compresses s, rewriting '\n' to the terminator in
// CR and CRLF modes. It returns the number of input characters
// consumed.
func (f *TextFile) Write(s string) (int, error) {
	if err := f.writeGate(); err != nil {
		return 0, err
	}
	out := s
	switch f.newline {
	case NewlineCR:
		out = strings.ReplaceAll(out, "\n", "\r")
	case NewlineCRLF:
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	b, err := f.dec.Encode(out)
	if err != nil {
		return 0, err
	}
	if _, err := f.bin.Write(b); err != nil {
		return 0, err
	}
	n := utf8.RuneCountInString(s)
	f.written += int64(n)
	return n, nil
}

// WriteLines writes each string verbatim. No terminators are added.
func (f *TextFile) WriteLines(lines []string) error {
	for _, line := range lines {
		if _, err := f.Write(line); err != nil {
			return err
		}
	}
	return nil
}

const cookiePendingFlag = 1

// cookieAt derives the cookie for the current read position: the
// binary offset shifted left one, with the low bit set when any
// decoder or text state would be needed to resume here.
func (f *TextFile) cookieAt() int64 {
	cookie := f.bin.pos << 1
	if len(f.carry.pending) > 0 || f.carry.trailingCR || f.text != "" {
		cookie |= cookiePendingFlag
	}
	return cookie
}

func (f *TextFile) checkpoint() textCheckpoint {
	return textCheckpoint{
		binOff:     f.bin.pos,
		pending:    bytes.Clone(f.carry.pending),
		trailingCR: f.carry.trailingCR,
		text:       f.text,
	}
}

// Tell returns an opaque cookie for the current position and caches
// the state needed to seek back to it. In write mode it returns the
// number of characters written.
func (f *TextFile) Tell() int64 {
	if f.closed {
		return 0
	}
	if f.mode.Writing() {
		return f.written
	}
	cookie := f.cookieAt()
	if cookie != 0 {
		f.cookies.put(cookie, f.checkpoint())
	}
	return cookie
}

// Seek repositions a read handle. Absolute targets must be 0 (full
// rewind) or a cookie previously returned by Tell on this handle;
// seeking to a cookie that was never issued, or was evicted from the
// cache, fails with ErrUncachedCookie. Relative and end-relative seeks
// accept only offset 0; Seek(0, io.SeekEnd) drains to the end. Write
// handles support only Seek(0, io.SeekCurrent).
func (f *TextFile) Seek(cookie int64, whence int) (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if f.mode.Writing() {
		if whence == io.SeekCurrent && cookie == 0 {
			return f.written, nil
		}
		return f.written, ErrRelativeSeek
	}
	switch whence {
	case io.SeekCurrent:
		if cookie != 0 {
			return f.Tell(), ErrRelativeSeek
		}
		return f.Tell(), nil

	case io.SeekEnd:
		if cookie != 0 {
			return f.Tell(), ErrRelativeSeek
		}
		if err := f.fillRunes(-1); err != nil {
			return f.Tell(), err
		}
		f.text = ""
		return f.Tell(), nil

	case io.SeekStart:
		if cookie < 0 {
			return f.Tell(), ErrNegativeSeek
		}
		if cookie == 0 {
			if err := f.bin.Rewind(); err != nil {
				return f.Tell(), err
			}
			f.carry = decodeCarry{}
			f.text = ""
			return 0, nil
		}
		cp, ok := f.cookies.get(cookie)
		if !ok {
			return f.Tell(), ErrUncachedCookie
		}
		if _, err := f.bin.Seek(cp.binOff, io.SeekStart); err != nil {
			return f.Tell(), err
		}
		f.carry = decodeCarry{pending: bytes.Clone(cp.pending), trailingCR: cp.trailingCR}
		f.text = cp.text
		return cookie, nil

	default:
		return f.Tell(), fmt.Errorf("gzstream: invalid seek whence %d", whence)
	}
}

// Rewind repositions a read handle at the start of the stream.
func (f *TextFile) Rewind() error {
	if err := f.readGate(); err != nil {
		return err
	}
	_, err := f.Seek(0, io.SeekStart)
	return err
}

// Flush pushes buffered compressed data to the sink without
// finalizing the member.
func (f *TextFile) Flush() error {
	if f.closed {
		return ErrClosed
	}
	return f.bin.Flush()
}

// Close finalizes the stream, drops all cached cookies and closes the
// underlying file when owned. Idempotent.
func (f *TextFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.cookies.clear()
	f.carry = decodeCarry{}
	f.text = ""
	return f.bin.Close()
}
