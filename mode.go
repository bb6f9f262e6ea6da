package gzstream

import (
	"fmt"
	"os"
)

// Mode is a parsed file mode. The accepted grammar is [rwxa][bt]?[+]?
// with the letters in any order: exactly one of r/w/a/x, at most one of
// b/t, and an optional '+'.
type Mode struct {
	Op     byte // 'r', 'w', 'a' or 'x'
	Binary bool
	Text   bool
	Plus   bool
}

// ParseMode parses a mode string.
func ParseMode(mode string) (Mode, error) {
	var m Mode
	if mode == "" {
		return m, fmt.Errorf("%w: empty mode", ErrInvalidMode)
	}
	for i := 0; i < len(mode); i++ {
		switch ch := mode[i]; ch {
		case 'r', 'w', 'a', 'x':
			if m.Op != 0 {
				return Mode{}, fmt.Errorf("%w %q: only one of r, w, a or x allowed", ErrInvalidMode, mode)
			}
			m.Op = ch
		case 'b':
			if m.Binary {
				return Mode{}, fmt.Errorf("%w %q: duplicate 'b'", ErrInvalidMode, mode)
			}
			m.Binary = true
		case 't':
			if m.Text {
				return Mode{}, fmt.Errorf("%w %q: duplicate 't'", ErrInvalidMode, mode)
			}
			m.Text = true
		case '+':
			if m.Plus {
				return Mode{}, fmt.Errorf("%w %q: duplicate '+'", ErrInvalidMode, mode)
			}
			m.Plus = true
		default:
			return Mode{}, fmt.Errorf("%w %q: invalid character %q", ErrInvalidMode, mode, ch)
		}
	}
	if m.Op == 0 {
		return Mode{}, fmt.Errorf("%w %q: one of r, w, a or x required", ErrInvalidMode, mode)
	}
	if m.Binary && m.Text {
		return Mode{}, fmt.Errorf("%w %q: 'b' and 't' are mutually exclusive", ErrInvalidMode, mode)
	}
	return m, nil
}

// Writing reports whether the mode opens the stream for writing.
func (m Mode) Writing() bool { return m.Op == 'w' || m.Op == 'a' || m.Op == 'x' }

// String reassembles a canonical mode string.
func (m Mode) String() string {
	s := string(m.Op)
	switch {
	case m.Binary:
		s += "b"
	case m.Text:
		s += "t"
	}
	if m.Plus {
		s += "+"
	}
	return s
}

// openFlag maps the mode to os.OpenFile flags for the underlying file.
func (m Mode) openFlag() int {
	var flag int
	switch m.Op {
	case 'r':
		flag = os.O_RDONLY
	case 'w':
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case 'a':
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case 'x':
		flag = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	if m.Plus {
		flag = flag&^(os.O_RDONLY|os.O_WRONLY) | os.O_RDWR
	}
	return flag
}
