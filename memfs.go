package gzstream

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/absfs/absfs"
)

// memFS is a small in-memory filesystem used by the test suite and by
// callers who want path-based opens without touching disk. It supports
// the open flags the handles use: create, truncate, append and
// exclusive create.
type memFS struct {
	mu    sync.RWMutex
	nodes map[string]*memNode
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *memFS {
	return &memFS{nodes: make(map[string]*memNode)}
}

var _ FileSystem = (*memFS)(nil)

// memNode is the shared content behind every handle on one path.
type memNode struct {
	mu      sync.Mutex
	data    []byte
	mode    fs.FileMode
	modTime time.Time
	syncs   int
}

func normalizePath(name string) string {
	name = filepath.Clean(name)
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		name = "."
	}
	return name
}

func (mfs *memFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	name = normalizePath(name)
	node, exists := mfs.nodes[name]
	if exists && flag&(os.O_CREATE|os.O_EXCL) == os.O_CREATE|os.O_EXCL {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	}
	if !exists {
		if flag&os.O_CREATE == 0 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		node = &memNode{mode: perm, modTime: time.Now()}
		mfs.nodes[name] = node
	}

	node.mu.Lock()
	if flag&os.O_TRUNC != 0 {
		node.data = node.data[:0]
		node.modTime = time.Now()
	}
	h := &memFile{name: name, node: node, append: flag&os.O_APPEND != 0}
	node.mu.Unlock()
	return h, nil
}

func (mfs *memFS) Open(name string) (absfs.File, error) {
	return mfs.OpenFile(name, os.O_RDONLY, 0)
}

func (mfs *memFS) Create(name string) (absfs.File, error) {
	return mfs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (mfs *memFS) Remove(name string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	name = normalizePath(name)
	if _, ok := mfs.nodes[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(mfs.nodes, name)
	return nil
}

func (mfs *memFS) Stat(name string) (fs.FileInfo, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	name = normalizePath(name)
	node, ok := mfs.nodes[name]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	return &memFileInfo{
		name:    filepath.Base(name),
		size:    int64(len(node.data)),
		mode:    node.mode,
		modTime: node.modTime,
	}, nil
}

// memFile is one open handle: its own position over the shared node.
type memFile struct {
	name   string
	node   *memNode
	pos    int64
	append bool
	closed bool
}

var _ absfs.File = (*memFile)(nil)

func (mf *memFile) Name() string { return mf.name }

func (mf *memFile) Read(p []byte) (int, error) {
	if mf.closed {
		return 0, fs.ErrClosed
	}
	mf.node.mu.Lock()
	defer mf.node.mu.Unlock()

	if mf.pos >= int64(len(mf.node.data)) {
		return 0, io.EOF
	}
	n := copy(p, mf.node.data[mf.pos:])
	mf.pos += int64(n)
	return n, nil
}

func (mf *memFile) ReadAt(p []byte, off int64) (int, error) {
	if mf.closed {
		return 0, fs.ErrClosed
	}
	if off < 0 {
		return 0, &fs.PathError{Op: "readat", Path: mf.name, Err: fs.ErrInvalid}
	}
	mf.node.mu.Lock()
	defer mf.node.mu.Unlock()

	if off >= int64(len(mf.node.data)) {
		return 0, io.EOF
	}
	n := copy(p, mf.node.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (mf *memFile) Write(p []byte) (int, error) {
	if mf.closed {
		return 0, fs.ErrClosed
	}
	mf.node.mu.Lock()
	defer mf.node.mu.Unlock()

	if mf.append {
		mf.pos = int64(len(mf.node.data))
	}
	n := mf.writeAtLocked(p, mf.pos)
	mf.pos += int64(n)
	return n, nil
}

func (mf *memFile) WriteAt(p []byte, off int64) (int, error) {
	if mf.closed {
		return 0, fs.ErrClosed
	}
	if off < 0 {
		return 0, &fs.PathError{Op: "writeat", Path: mf.name, Err: fs.ErrInvalid}
	}
	mf.node.mu.Lock()
	defer mf.node.mu.Unlock()
	return mf.writeAtLocked(p, off), nil
}

func (mf *memFile) writeAtLocked(p []byte, off int64) int {
	need := int(off) + len(p)
	if need > len(mf.node.data) {
		grown := make([]byte, need)
		copy(grown, mf.node.data)
		mf.node.data = grown
	}
	n := copy(mf.node.data[off:], p)
	mf.node.modTime = time.Now()
	return n
}

func (mf *memFile) WriteString(s string) (int, error) {
	return mf.Write([]byte(s))
}

func (mf *memFile) Seek(offset int64, whence int) (int64, error) {
	if mf.closed {
		return 0, fs.ErrClosed
	}
	mf.node.mu.Lock()
	defer mf.node.mu.Unlock()

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = mf.pos + offset
	case io.SeekEnd:
		pos = int64(len(mf.node.data)) + offset
	default:
		return 0, &fs.PathError{Op: "seek", Path: mf.name, Err: fs.ErrInvalid}
	}
	if pos < 0 {
		return 0, &fs.PathError{Op: "seek", Path: mf.name, Err: fs.ErrInvalid}
	}
	mf.pos = pos
	return pos, nil
}

func (mf *memFile) Truncate(size int64) error {
	if mf.closed {
		return fs.ErrClosed
	}
	mf.node.mu.Lock()
	defer mf.node.mu.Unlock()

	switch {
	case size < int64(len(mf.node.data)):
		mf.node.data = mf.node.data[:size]
	case size > int64(len(mf.node.data)):
		grown := make([]byte, size)
		copy(grown, mf.node.data)
		mf.node.data = grown
	}
	mf.node.modTime = time.Now()
	return nil
}

func (mf *memFile) Stat() (fs.FileInfo, error) {
	mf.node.mu.Lock()
	defer mf.node.mu.Unlock()
	return &memFileInfo{
		name:    filepath.Base(mf.name),
		size:    int64(len(mf.node.data)),
		mode:    mf.node.mode,
		modTime: mf.node.modTime,
	}, nil
}

// Sync counts calls so tests can observe that Flush reaches the sink.
func (mf *memFile) Sync() error {
	if mf.closed {
		return fs.ErrClosed
	}
	mf.node.mu.Lock()
	mf.node.syncs++
	mf.node.mu.Unlock()
	return nil
}

func (mf *memFile) Close() error {
	mf.closed = true
	return nil
}

func (mf *memFile) Readdir(int) ([]os.FileInfo, error) {
	return nil, &fs.PathError{Op: "readdir", Path: mf.name, Err: fs.ErrInvalid}
}

func (mf *memFile) Readdirnames(int) ([]string, error) {
	return nil, &fs.PathError{Op: "readdirnames", Path: mf.name, Err: fs.ErrInvalid}
}

type memFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi *memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *memFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *memFileInfo) Sys() interface{}   { return nil }
