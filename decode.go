package gzstream

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Error policies for character conversion.
const (
	errorsStrict  = "strict"
	errorsReplace = "replace"
	errorsIgnore  = "ignore"
)

// decodeCarry is the complete inter-chunk state of the text decoder:
// raw bytes held back because they may start an incomplete multibyte
// sequence, and whether the last decoded rune was a bare '\r' held
// back by universal newline translation. The carry is a plain value,
// so a seek cookie can capture and restore it wholesale.
type decodeCarry struct {
	pending    []byte
	trailingCR bool
}

// decoder converts between bytes and strings for one named encoding
// under one error policy. A nil enc selects the UTF-8 fast path.
// Decode is a pure function of (carry, chunk); all state lives in the
// decodeCarry.
type decoder struct {
	enc    encoding.Encoding
	name   string
	policy string
}

// lookupEncoding resolves a user-supplied encoding name. Empty, utf-8
// and utf8 select the native fast path.
func lookupEncoding(name string) (encoding.Encoding, string, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
	switch norm {
	case "", "utf-8", "utf8":
		return nil, "utf-8", nil
	}
	enc, err := ianaindex.IANA.Encoding(norm)
	if err != nil || enc == nil {
		return nil, "", fmt.Errorf("gzstream: unknown encoding %q", name)
	}
	return enc, norm, nil
}

func newDecoder(encName, policy string) (decoder, error) {
	enc, canonical, err := lookupEncoding(encName)
	if err != nil {
		return decoder{}, err
	}
	if policy == "" {
		policy = errorsStrict
	}
	switch policy {
	case errorsStrict, errorsReplace, errorsIgnore:
	default:
		return decoder{}, fmt.Errorf("gzstream: unknown error policy %q", policy)
	}
	return decoder{enc: enc, name: canonical, policy: policy}, nil
}

// incompleteSuffix returns how many trailing bytes of b form the start
// of an incomplete UTF-8 sequence. Trailing bytes that are already
// invalid are not held back; the policy deals with them.
func incompleteSuffix(b []byte) int {
	end := len(b)
	for i := 1; i <= utf8.UTFMax && i <= end; i++ {
		c := b[end-i]
		if c < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(c) {
			var want int
			switch {
			case c&0xE0 == 0xC0:
				want = 2
			case c&0xF0 == 0xE0:
				want = 3
			case c&0xF8 == 0xF0:
				want = 4
			default:
				return 0
			}
			if i < want {
				return i
			}
			return 0
		}
	}
	return 0
}

// Decode converts pending+chunk to text, returning the decoded string
// and the raw bytes to carry into the next call. With final set,
// nothing is held back: a trailing incomplete sequence is an error or
// is replaced/dropped per the policy.
func (d decoder) Decode(pending, chunk []byte, final bool) (string, []byte, error) {
	data := pending
	if len(data) == 0 {
		data = chunk
	} else if len(chunk) > 0 {
		data = append(bytes.Clone(pending), chunk...)
	}
	if d.enc == nil {
		return d.decodeUTF8(data, final)
	}
	return d.decodeTransform(data, final)
}

func (d decoder) decodeUTF8(data []byte, final bool) (string, []byte, error) {
	var rest []byte
	truncated := false
	if k := incompleteSuffix(data); k > 0 {
		if final {
			// a dangling sequence start at end of stream converts as
			// one unit under the policy
			truncated = true
		} else {
			rest = bytes.Clone(data[len(data)-k:])
		}
		data = data[:len(data)-k]
	}
	if utf8.Valid(data) && !truncated {
		return string(data), rest, nil
	}
	if d.policy == errorsStrict {
		return "", nil, &CodecError{Op: "decode", Encoding: d.name}
	}
	var sb strings.Builder
	sb.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			if d.policy == errorsReplace {
				sb.WriteRune(utf8.RuneError)
			}
		} else {
			sb.Write(data[:size])
		}
		data = data[size:]
	}
	if truncated && d.policy == errorsReplace {
		sb.WriteRune(utf8.RuneError)
	}
	return sb.String(), rest, nil
}

func (d decoder) decodeTransform(data []byte, final bool) (string, []byte, error) {
	tr := d.enc.NewDecoder().Transformer
	dst := make([]byte, len(data)*3+16)
	var out []byte
	src := data
	for {
		nDst, nSrc, err := tr.Transform(dst, src, final)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		switch {
		case err == nil:
			return d.applyPolicy(out, src)
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			if final {
				return "", nil, &CodecError{Op: "decode", Encoding: d.name, Err: err}
			}
			return d.applyPolicy(out, src)
		default:
			return "", nil, &CodecError{Op: "decode", Encoding: d.name, Err: err}
		}
	}
}

// applyPolicy post-processes transform output. x/text decoders emit
// U+FFFD for undecodable input; strict treats its presence as an
// error, ignore strips it.
func (d decoder) applyPolicy(out, rest []byte) (string, []byte, error) {
	s := string(out)
	if strings.ContainsRune(s, utf8.RuneError) {
		switch d.policy {
		case errorsStrict:
			return "", nil, &CodecError{Op: "decode", Encoding: d.name}
		case errorsIgnore:
			s = strings.ReplaceAll(s, string(utf8.RuneError), "")
		}
	}
	return s, bytes.Clone(rest), nil
}

// Encode converts s to bytes in the decoder's encoding, applying the
// error policy to unrepresentable characters.
func (d decoder) Encode(s string) ([]byte, error) {
	if d.enc == nil {
		if utf8.ValidString(s) {
			return []byte(s), nil
		}
		switch d.policy {
		case errorsStrict:
			return nil, &CodecError{Op: "encode", Encoding: d.name}
		case errorsIgnore:
			return []byte(strings.Map(dropInvalid, s)), nil
		default:
			return []byte(strings.ToValidUTF8(s, string(utf8.RuneError))), nil
		}
	}
	switch d.policy {
	case errorsReplace:
		out, err := encoding.ReplaceUnsupported(d.enc.NewEncoder()).Bytes([]byte(s))
		if err != nil {
			return nil, &CodecError{Op: "encode", Encoding: d.name, Err: err}
		}
		return out, nil
	case errorsIgnore:
		var out []byte
		for _, r := range s {
			b, err := d.enc.NewEncoder().Bytes([]byte(string(r)))
			if err == nil {
				out = append(out, b...)
			}
		}
		return out, nil
	default:
		out, err := d.enc.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, &CodecError{Op: "encode", Encoding: d.name, Err: err}
		}
		return out, nil
	}
}

func dropInvalid(r rune) rune {
	if r == utf8.RuneError {
		return -1
	}
	return r
}
