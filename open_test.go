package gzstream

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"testing"
)

func TestOpenDispatch(t *testing.T) {
	fsys := NewMemFS()
	writeGz(t, fsys, "d.gz", []byte("dispatch"), nil)

	s, err := Open("d.gz", "rt", &Options{FileSystem: fsys})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*TextFile); !ok {
		t.Fatalf("Open rt = %T, want *TextFile", s)
	}
	s.Close()

	s, err = Open("d.gz", "rb", &Options{FileSystem: fsys})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*BinaryFile); !ok {
		t.Fatalf("Open rb = %T, want *BinaryFile", s)
	}
	if s.Mode() != "rb" || s.Name() != "d.gz" {
		t.Fatalf("Mode/Name = %q/%q", s.Mode(), s.Name())
	}
	s.Close()

	if _, err := Open("d.gz", "q", &Options{FileSystem: fsys}); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("invalid mode = %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	fsys := NewMemFS()
	if _, err := OpenBinary("absent.gz", "rb", &Options{FileSystem: fsys}); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file = %v, want fs.ErrNotExist", err)
	}
}

func TestHeaderNameDerivation(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"data.txt.gz", "data.txt"},
		{"/var/log/app.log.gz", "app.log"},
		{"plain", "plain"},
		{"nested/dir/report.gz", "report"},
	}
	for _, tc := range cases {
		if got := deriveHeaderName(tc.path); got != tc.want {
			t.Errorf("deriveHeaderName(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestHeaderNameNonLatin1Dropped(t *testing.T) {
	fsys := NewMemFS()
	w, err := OpenBinary("x.gz", "wb", &Options{FileSystem: fsys, OriginalFilename: "日本語.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteString("content"); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r := openGz(t, fsys, "x.gz", nil)
	defer r.Close()
	if name, ok := r.OriginalName(); ok {
		t.Fatalf("non-latin-1 name survived as %q", name)
	}
}

func TestExplicitOriginalFilename(t *testing.T) {
	fsys := NewMemFS()
	w, err := OpenBinary("y.gz", "wb", &Options{FileSystem: fsys, OriginalFilename: "override.bin"})
	if err != nil {
		t.Fatal(err)
	}
	w.WriteString("z")
	w.Close()

	r := openGz(t, fsys, "y.gz", nil)
	defer r.Close()
	name, ok := r.OriginalName()
	if !ok || name != "override.bin" {
		t.Fatalf("OriginalName = %q, %v", name, ok)
	}
}

func TestCloseFileOwnership(t *testing.T) {
	fsys := NewMemFS()

	fh, err := fsys.OpenFile("own.gz", os.O_WRONLY|os.O_CREATE, 0666)
	if err != nil {
		t.Fatal(err)
	}
	f, err := NewBinaryFile(fh, "wb", nil) // CloseFile defaults to false
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("kept open")
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := fh.Write([]byte{0}); err != nil {
		t.Fatalf("underlying file closed without ownership: %v", err)
	}
	fh.Close()

	fh2, err := fsys.OpenFile("own2.gz", os.O_WRONLY|os.O_CREATE, 0666)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := NewBinaryFile(fh2, "wb", &Options{CloseFile: true})
	if err != nil {
		t.Fatal(err)
	}
	f2.WriteString("owned")
	if err := f2.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := fh2.Write([]byte{0}); !errors.Is(err, fs.ErrClosed) {
		t.Fatalf("owned file not closed: %v", err)
	}
}

func TestOptionsValidation(t *testing.T) {
	fsys := NewMemFS()
	writeGz(t, fsys, "v.gz", []byte("x"), nil)

	if _, err := OpenText("v.gz", "rt", &Options{FileSystem: fsys, Newline: NewlineMode(42)}); err == nil {
		t.Error("invalid newline mode accepted")
	}
	if _, err := OpenText("v.gz", "rt", &Options{FileSystem: fsys, Errors: "lenient"}); err == nil {
		t.Error("invalid error policy accepted")
	}
	if _, err := OpenBinary("v.gz", "rb", &Options{FileSystem: fsys, Newline: NewlineCRLF}); !errors.Is(err, ErrInvalidMode) {
		t.Error("newline option accepted for explicit binary mode")
	}
}

func TestParseNewlineMode(t *testing.T) {
	cases := map[string]NewlineMode{
		"universal": NewlineUniversal,
		"":          NewlinePassthrough,
		"\n":        NewlineLF,
		"\r":        NewlineCR,
		"\r\n":      NewlineCRLF,
	}
	for in, want := range cases {
		got, err := ParseNewlineMode(in)
		if err != nil || got != want {
			t.Errorf("ParseNewlineMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseNewlineMode("\n\r"); err == nil {
		t.Error("expected error for unknown newline literal")
	}
}

func TestStreamSeekThroughInterface(t *testing.T) {
	fsys := NewMemFS()
	writeGz(t, fsys, "s.gz", []byte("interface"), nil)

	var s Stream
	s, err := Open("s.gz", "rb", &Options{FileSystem: fsys})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	pos, err := s.Seek(0, io.SeekEnd)
	if err != nil || pos != int64(len("interface")) {
		t.Fatalf("Seek through Stream = %d, %v", pos, err)
	}
	if s.Tell() != pos {
		t.Fatalf("Tell = %d, want %d", s.Tell(), pos)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush on read handle = %v", err)
	}
}
