// Package gzstream provides a file-like abstraction over
// gzip-compressed byte streams: incremental reads and writes, lines,
// peeking and restricted seeking, without ever holding a whole
// decompressed stream in memory.
//
// # Handles
//
// A BinaryFile exchanges bytes; a TextFile layers character decoding
// and newline handling on top. Both are opened by path with an
// fopen-style mode string, or wrapped around an existing stream:
//
//	f, _ := gzstream.OpenText("log.gz", "rt", nil)
//	defer f.Close()
//	for line, err := range f.Lines() {
//	    if err != nil {
//	        break
//	    }
//	    fmt.Print(line)
//	}
//
// Mode strings follow the [rwxa][bt]?[+]? grammar: "rb" reads bytes,
// "wt" writes text, "x" creates exclusively, "a" appends a new gzip
// member after existing ones.
//
// # Reading
//
// Read handles decode concatenated gzip members as one continuous
// stream, validate each member's CRC32 and length, and tolerate
// trailing zero padding. Corrupt input surfaces as a *FormatError
// naming the failed check; failures of the underlying file surface as
// a *StreamError with the original cause.
//
// # Seeking
//
// Compressed data has no random access. Binary handles support
// absolute seeks (backward ones rewind and re-decompress) and
// Seek(0, io.SeekEnd). Text handles exchange opaque cookies: Seek
// accepts 0 or a cookie previously returned by Tell on the same
// handle, and fails with ErrUncachedCookie once a cookie has been
// evicted from the bounded cache.
//
// # Writing
//
// Write handles produce a single gzip member. Flush emits a deflate
// sync flush so readers can see everything written so far; the CRC32
// trailer is written exactly once, on Close.
//
// # Filesystems
//
// Path-based opens go through the operating system by default.
// Options.FileSystem accepts any absfs.Filer, including the in-memory
// filesystem returned by NewMemFS.
//
// Handles perform no internal locking: operations on one handle must
// not overlap, while distinct handles are fully independent.
package gzstream
