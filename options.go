package gzstream

import (
	"fmt"
	"time"
)

// defaultChunkSize is the read granularity and buffered-reader size.
const defaultChunkSize = 64 * 1024

// defaultLevel is the compression level used when Options.Level is 0.
const defaultLevel = 6

// Options configures a stream handle. The zero value (and nil) selects
// defaults throughout.
type Options struct {
	// ChunkSize is the granularity of compressed and decompressed I/O.
	// Default 64 KiB.
	ChunkSize int

	// Level is the write-mode compression level, 1 (fastest) to 9
	// (best). 0 selects the default of 6, -1 the flate default. Read
	// modes ignore it.
	Level int

	// Mtime overrides the modification time stored in the gzip header.
	// Nil records the time the header is written; point at a zero time
	// to store 0.
	Mtime *time.Time

	// OriginalFilename is stored in the header FNAME field. Empty
	// derives it from the target path for path-based opens. Names that
	// are not latin-1 encodable are dropped.
	OriginalFilename string

	// Encoding names the character encoding for text handles. Empty
	// means UTF-8.
	Encoding string

	// Errors is the conversion error policy for text handles: "strict"
	// (default), "replace" or "ignore".
	Errors string

	// Newline is the newline handling for text handles.
	Newline NewlineMode

	// CookieLimit caps the cached text seek cookies per handle.
	// Default 1000.
	CookieLimit int

	// CloseFile makes NewBinaryFile and NewTextFile close the supplied
	// stream when the handle is closed. Path-based opens always close
	// what they open.
	CloseFile bool

	// FileSystem overrides the operating system filesystem for
	// path-based opens. Any absfs.Filer qualifies.
	FileSystem FileSystem
}

// DefaultOptions returns the documented defaults, spelled out.
func DefaultOptions() *Options {
	return &Options{
		ChunkSize:   defaultChunkSize,
		Level:       defaultLevel,
		Errors:      errorsStrict,
		CookieLimit: defaultCookieLimit,
	}
}

// withDefaults resolves a possibly-nil Options into a filled-in value.
func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = defaultChunkSize
	}
	if out.CookieLimit <= 0 {
		out.CookieLimit = defaultCookieLimit
	}
	if out.Errors == "" {
		out.Errors = errorsStrict
	}
	return out
}

func (o Options) validate(m Mode) error {
	if m.Writing() && (o.Level < -1 || o.Level > 9) {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, o.Level)
	}
	// modes without 't' are binary, 'b' or not
	if !m.Text {
		if o.Encoding != "" || o.Errors != errorsStrict || o.Newline != NewlineUniversal {
			return fmt.Errorf("%w: text options set for binary mode", ErrInvalidMode)
		}
	}
	return nil
}

func (o Options) flateLevel() int {
	if o.Level == 0 {
		return defaultLevel
	}
	return o.Level
}

// headerName returns the FNAME value, dropping names the latin-1
// header field cannot hold.
func (o Options) headerName() string {
	for _, r := range o.OriginalFilename {
		if r == 0 || r > 0xff {
			return ""
		}
	}
	return o.OriginalFilename
}
