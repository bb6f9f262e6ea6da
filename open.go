package gzstream

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/absfs/absfs"
)

// FileSystem opens the underlying files for path-based constructors.
// Any absfs.Filer satisfies it; the default is the operating system
// filesystem.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error)
}

type osFS struct{}

func (osFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	return os.OpenFile(name, flag, perm)
}

// Stream is the surface common to BinaryFile and TextFile.
type Stream interface {
	io.Closer
	Name() string
	Mode() string
	Tell() int64
	Seek(offset int64, whence int) (int64, error)
	Flush() error
}

var (
	_ Stream = (*BinaryFile)(nil)
	_ Stream = (*TextFile)(nil)
)

// Open opens a gzip file by path with an fopen-style mode string.
// Modes containing 't' return a *TextFile, all others a *BinaryFile.
func Open(name, mode string, opts *Options) (Stream, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if m.Text {
		return OpenText(name, mode, opts)
	}
	return OpenBinary(name, mode, opts)
}

// OpenBinary opens a gzip file by path as a binary handle. The
// underlying file is closed with the handle.
func OpenBinary(name, mode string, opts *Options) (*BinaryFile, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	o := prepareOpen(name, m, opts)
	file, err := openUnderlying(name, m, o)
	if err != nil {
		return nil, err
	}
	f, err := NewBinaryFile(file, mode, &o)
	if err != nil {
		file.Close()
		return nil, err
	}
	return f, nil
}

// OpenText opens a gzip file by path as a text handle. The underlying
// file is closed with the handle.
func OpenText(name, mode string, opts *Options) (*TextFile, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	o := prepareOpen(name, m, opts)
	f, err := openUnderlying(name, m, o)
	if err != nil {
		return nil, err
	}
	t, err := NewTextFile(f, mode, &o)
	if err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func prepareOpen(name string, m Mode, opts *Options) Options {
	o := opts.withDefaults()
	o.CloseFile = true
	if m.Writing() && o.OriginalFilename == "" {
		o.OriginalFilename = deriveHeaderName(name)
	}
	return o
}

func openUnderlying(name string, m Mode, o Options) (absfs.File, error) {
	fs := o.FileSystem
	if fs == nil {
		fs = osFS{}
	}
	return fs.OpenFile(name, m.openFlag(), 0666)
}

// deriveHeaderName produces the FNAME header value for a target path:
// the basename with a ".gz" suffix stripped, or nothing when the
// result is empty or not latin-1 encodable.
func deriveHeaderName(path string) string {
	base := filepath.Base(path)
	if trimmed := strings.TrimSuffix(base, ".gz"); trimmed != base {
		base = trimmed
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		return ""
	}
	return Options{OriginalFilename: base}.headerName()
}
