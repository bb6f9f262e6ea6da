package gzstream

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by any operation on a closed stream.
	ErrClosed = errors.New("gzstream: file already closed")

	// ErrNotReadable is returned when a read-side operation is attempted
	// on a write-mode stream.
	ErrNotReadable = errors.New("gzstream: file not open for reading")

	// ErrNotWritable is returned when a write-side operation is attempted
	// on a read-mode stream.
	ErrNotWritable = errors.New("gzstream: file not open for writing")

	// ErrRelativeSeek is returned for relative seeks with a nonzero
	// offset. Compressed streams only support absolute repositioning,
	// seek(0, Current) and seek(0, End).
	ErrRelativeSeek = errors.New("gzstream: nonzero relative seek not supported")

	// ErrNegativeSeek is returned for seeks before the start of the
	// stream, or behind the current position in write mode.
	ErrNegativeSeek = errors.New("gzstream: negative seek position")

	// ErrUncachedCookie is returned when seeking a text stream to a
	// cookie that was never recorded or has been evicted. Failing here is
	// deliberate: resuming from a guessed position would silently return
	// bytes from the wrong logical offset.
	ErrUncachedCookie = errors.New("gzstream: seek target cookie not cached; call Tell near the target position")

	// ErrNotSeekable is returned when a rewind is required but the
	// underlying stream does not implement io.Seeker.
	ErrNotSeekable = errors.New("gzstream: underlying stream is not seekable")

	// ErrInvalidMode is returned for mode strings outside the
	// [rwxa][bt]?[+]? grammar.
	ErrInvalidMode = errors.New("gzstream: invalid mode string")

	// ErrInvalidLevel is returned for compression levels outside [-1, 9]
	// in write mode.
	ErrInvalidLevel = errors.New("gzstream: invalid compression level")
)

// FormatError reports corrupt or truncated gzip input. Check names the
// validation that failed ("magic", "method", "header checksum", "crc32",
// "size", "deflate"). Offset is the compressed-stream offset near which
// the failure was detected.
type FormatError struct {
	Check  string
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gzstream: invalid gzip data (%s check failed at offset %d): %v", e.Check, e.Offset, e.Err)
	}
	return fmt.Sprintf("gzstream: invalid gzip data (%s check failed at offset %d)", e.Check, e.Offset)
}

func (e *FormatError) Unwrap() error { return e.Err }

// CodecError reports a character conversion failure under the "strict"
// error policy, or an unusable encoding.
type CodecError struct {
	Op       string // "decode" or "encode"
	Encoding string
	Err      error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gzstream: %s %s: %v", e.Op, e.Encoding, e.Err)
	}
	return fmt.Sprintf("gzstream: %s %s: malformed input", e.Op, e.Encoding)
}

func (e *CodecError) Unwrap() error { return e.Err }

// StreamError wraps a failure of the underlying byte source or sink with
// the operation and uncompressed-stream offset for diagnosis. The
// original cause is preserved for errors.Is/As.
type StreamError struct {
	Op     string
	Offset int64
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("gzstream: %s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
