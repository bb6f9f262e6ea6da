package gzstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
)

// gzip member layout constants (RFC 1952).
const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 8

	flagText    = 1 << 0
	flagHdrCRC  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4

	osUnknown = 255
)

// countReader counts bytes pulled from the underlying source so that
// errors can report a compressed-stream offset.
type countReader struct {
	r io.Reader
	n int64
}

func (cr *countReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// memberReader decompresses a stream of one or more concatenated gzip
// members, validating each member's CRC32 and size trailer. Runs of
// zero bytes between members or before EOF are treated as padding.
// Output never requires a whole member in memory; compressed input is
// pulled in chunks bounded by the buffered reader size.
type memberReader struct {
	cr      countReader
	br      *bufferedByteReader
	fr      io.ReadCloser // flate inflater, reset per member
	crc     uint32
	size    uint32
	inBody  bool
	eof     bool
	sawAny  bool // at least one member decoded to completion
	hasHdr  bool // first member's header fields captured
	mtime   time.Time
	hdrName string
}

// bufferedByteReader is the minimal buffered reader the inflater needs:
// byte-at-a-time access so flate does not read past the member trailer.
type bufferedByteReader struct {
	src  io.Reader
	buf  []byte
	r, w int
}

func newBufferedByteReader(src io.Reader, size int) *bufferedByteReader {
	if size < 16 {
		size = 16
	}
	return &bufferedByteReader{src: src, buf: make([]byte, size)}
}

func (b *bufferedByteReader) Reset(src io.Reader) {
	b.src = src
	b.r, b.w = 0, 0
}

func (b *bufferedByteReader) fill() error {
	if b.r > 0 {
		b.w = copy(b.buf, b.buf[b.r:b.w])
		b.r = 0
	}
	n, err := b.src.Read(b.buf[b.w:])
	b.w += n
	if n > 0 {
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

func (b *bufferedByteReader) Read(p []byte) (int, error) {
	if b.r == b.w {
		if err := b.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.buf[b.r:b.w])
	b.r += n
	return n, nil
}

func (b *bufferedByteReader) ReadByte() (byte, error) {
	if b.r == b.w {
		if err := b.fill(); err != nil {
			return 0, err
		}
	}
	c := b.buf[b.r]
	b.r++
	return c, nil
}

func newMemberReader(src io.Reader, chunkSize int) *memberReader {
	mr := &memberReader{}
	mr.cr = countReader{r: src}
	mr.br = newBufferedByteReader(&mr.cr, chunkSize)
	return mr
}

// reset rewinds the codec to a fresh pre-header state over src.
func (mr *memberReader) reset(src io.Reader) {
	mr.cr = countReader{r: src}
	mr.br.Reset(&mr.cr)
	mr.crc, mr.size = 0, 0
	mr.inBody = false
	mr.eof = false
	mr.sawAny = false
}

// Mtime returns the first member's header mtime. Valid once the header
// has been parsed (after the first read).
func (mr *memberReader) Mtime() (time.Time, bool) {
	return mr.mtime, mr.hasHdr
}

// Name returns the original filename recorded in the first member's
// header, if any.
func (mr *memberReader) Name() (string, bool) {
	return mr.hdrName, mr.hasHdr
}

func (mr *memberReader) Read(p []byte) (int, error) {
	for {
		if mr.eof {
			return 0, io.EOF
		}
		if !mr.inBody {
			if err := mr.readHeader(); err != nil {
				return 0, err
			}
			continue
		}
		n, err := mr.fr.Read(p)
		if n > 0 {
			mr.crc = crc32.Update(mr.crc, crc32.IEEETable, p[:n])
			mr.size += uint32(n)
		}
		if err == nil {
			if n > 0 {
				return n, nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			if terr := mr.readTrailer(); terr != nil {
				return n, terr
			}
			mr.inBody = false
			mr.sawAny = true
			if n > 0 {
				return n, nil
			}
			continue
		}
		var corrupt flate.CorruptInputError
		if errors.As(err, &corrupt) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, &FormatError{Check: "deflate", Offset: mr.cr.n, Err: err}
		}
		return n, &StreamError{Op: "read", Offset: mr.cr.n, Err: err}
	}
}

// readHeader parses the next member header. Sets eof on a clean end of
// input (including trailing zero padding after a completed member).
func (mr *memberReader) readHeader() error {
	b, err := mr.br.ReadByte()
	if mr.sawAny {
		for err == nil && b == 0 {
			b, err = mr.br.ReadByte()
		}
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			mr.eof = true
			return nil
		}
		return &StreamError{Op: "read", Offset: mr.cr.n, Err: err}
	}

	var hdr [10]byte
	hdr[0] = b
	if _, err := io.ReadFull(mr.br, hdr[1:]); err != nil {
		return mr.readErr("header", err)
	}
	if hdr[0] != gzipID1 || hdr[1] != gzipID2 {
		return &FormatError{Check: "magic", Offset: mr.cr.n}
	}
	if hdr[2] != gzipDeflate {
		return &FormatError{Check: "method", Offset: mr.cr.n}
	}
	flags := hdr[3]
	digest := crc32.ChecksumIEEE(hdr[:])

	if flags&flagExtra != 0 {
		var xlen [2]byte
		if _, err := io.ReadFull(mr.br, xlen[:]); err != nil {
			return mr.readErr("header", err)
		}
		digest = crc32.Update(digest, crc32.IEEETable, xlen[:])
		extra := make([]byte, binary.LittleEndian.Uint16(xlen[:]))
		if _, err := io.ReadFull(mr.br, extra); err != nil {
			return mr.readErr("header", err)
		}
		digest = crc32.Update(digest, crc32.IEEETable, extra)
	}

	var name []byte
	if flags&flagName != 0 {
		name, digest, err = mr.readString(digest)
		if err != nil {
			return err
		}
	}
	if flags&flagComment != 0 {
		if _, digest, err = mr.readString(digest); err != nil {
			return err
		}
	}
	if flags&flagHdrCRC != 0 {
		var sum [2]byte
		if _, err := io.ReadFull(mr.br, sum[:]); err != nil {
			return mr.readErr("header", err)
		}
		if binary.LittleEndian.Uint16(sum[:]) != uint16(digest) {
			return &FormatError{Check: "header checksum", Offset: mr.cr.n}
		}
	}

	if !mr.hasHdr {
		mr.mtime = time.Unix(int64(binary.LittleEndian.Uint32(hdr[4:8])), 0)
		mr.hdrName = latin1String(name)
		mr.hasHdr = true
	}

	if mr.fr == nil {
		mr.fr = flate.NewReader(mr.br)
	} else if err := mr.fr.(flate.Resetter).Reset(mr.br, nil); err != nil {
		return &StreamError{Op: "read", Offset: mr.cr.n, Err: err}
	}
	mr.crc, mr.size = 0, 0
	mr.inBody = true
	return nil
}

// latin1String decodes a header field, one rune per byte (RFC 1952
// strings are ISO 8859-1).
func latin1String(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

// readString reads a NUL-terminated latin-1 header field.
func (mr *memberReader) readString(digest uint32) ([]byte, uint32, error) {
	var s []byte
	for {
		c, err := mr.br.ReadByte()
		if err != nil {
			return nil, digest, mr.readErr("header", err)
		}
		digest = crc32.Update(digest, crc32.IEEETable, []byte{c})
		if c == 0 {
			return s, digest, nil
		}
		s = append(s, c)
	}
}

func (mr *memberReader) readTrailer() error {
	var tr [8]byte
	if _, err := io.ReadFull(mr.br, tr[:]); err != nil {
		return mr.readErr("trailer", err)
	}
	if got := binary.LittleEndian.Uint32(tr[0:4]); got != mr.crc {
		return &FormatError{Check: "crc32", Offset: mr.cr.n,
			Err: fmt.Errorf("stored %#08x, computed %#08x", got, mr.crc)}
	}
	if got := binary.LittleEndian.Uint32(tr[4:8]); got != mr.size {
		return &FormatError{Check: "size", Offset: mr.cr.n,
			Err: fmt.Errorf("stored %d, computed %d", got, mr.size)}
	}
	return nil
}

// readErr classifies a failed low-level read: truncation is a format
// problem, anything else is the source's fault.
func (mr *memberReader) readErr(check string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FormatError{Check: check, Offset: mr.cr.n, Err: io.ErrUnexpectedEOF}
	}
	return &StreamError{Op: "read", Offset: mr.cr.n, Err: err}
}

// memberWriter emits a single gzip member: header on first write (or on
// finalize for an empty stream), deflate payload, and the CRC32/size
// trailer exactly once.
type memberWriter struct {
	dst         io.Writer
	fw          *flate.Writer
	level       int
	crc         uint32
	size        uint32
	name        string
	mtime       time.Time
	wroteHeader bool
	finalized   bool
}

func newMemberWriter(dst io.Writer, level int, name string, mtime time.Time) (*memberWriter, error) {
	fw, err := flate.NewWriter(dst, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	return &memberWriter{dst: dst, fw: fw, level: level, name: name, mtime: mtime}, nil
}

func (mw *memberWriter) writeHeader() error {
	hdr := make([]byte, 10, 10+len(mw.name)+1)
	hdr[0], hdr[1], hdr[2] = gzipID1, gzipID2, gzipDeflate
	if mw.name != "" {
		hdr[3] |= flagName
	}
	if secs := mw.mtime.Unix(); secs > 0 {
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(secs))
	}
	switch mw.level {
	case flate.BestCompression:
		hdr[8] = 2
	case flate.BestSpeed:
		hdr[8] = 4
	}
	hdr[9] = osUnknown
	if mw.name != "" {
		// one byte per rune; the name is validated latin-1
		for _, r := range mw.name {
			hdr = append(hdr, byte(r))
		}
		hdr = append(hdr, 0)
	}
	if _, err := mw.dst.Write(hdr); err != nil {
		return &StreamError{Op: "write", Offset: int64(mw.size), Err: err}
	}
	mw.wroteHeader = true
	return nil
}

func (mw *memberWriter) Write(p []byte) (int, error) {
	if !mw.wroteHeader {
		if err := mw.writeHeader(); err != nil {
			return 0, err
		}
	}
	mw.crc = crc32.Update(mw.crc, crc32.IEEETable, p)
	mw.size += uint32(len(p))
	n, err := mw.fw.Write(p)
	if err != nil {
		return n, &StreamError{Op: "write", Offset: int64(mw.size), Err: err}
	}
	return n, nil
}

// Flush forces buffered compressed output to the sink with a deflate
// sync flush. The stream stays open for further writes; no trailer is
// emitted.
func (mw *memberWriter) Flush() error {
	if !mw.wroteHeader {
		if err := mw.writeHeader(); err != nil {
			return err
		}
	}
	if err := mw.fw.Flush(); err != nil {
		return &StreamError{Op: "flush", Offset: int64(mw.size), Err: err}
	}
	return nil
}

// Close finalizes the member: remaining deflate output plus the trailer.
// Safe to call more than once; the trailer is written exactly once.
func (mw *memberWriter) Close() error {
	if mw.finalized {
		return nil
	}
	mw.finalized = true
	if !mw.wroteHeader {
		if err := mw.writeHeader(); err != nil {
			return err
		}
	}
	if err := mw.fw.Close(); err != nil {
		return &StreamError{Op: "close", Offset: int64(mw.size), Err: err}
	}
	var tr [8]byte
	binary.LittleEndian.PutUint32(tr[0:4], mw.crc)
	binary.LittleEndian.PutUint32(tr[4:8], mw.size)
	if _, err := mw.dst.Write(tr[:]); err != nil {
		return &StreamError{Op: "close", Offset: int64(mw.size), Err: err}
	}
	return nil
}
