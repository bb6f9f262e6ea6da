package gzstream

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	kgzip "github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustGzip compresses data with the reference gzip implementation.
func mustGzip(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := kgzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// readAllMembers drains a memberReader in small steps.
func readAllMembers(t *testing.T, mr *memberReader) ([]byte, error) {
	t.Helper()
	var out []byte
	p := make([]byte, 7)
	for {
		n, err := mr.Read(p)
		out = append(out, p[:n]...)
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
	}
}

func TestMemberReaderOracleInput(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog")
	mt := time.Unix(1234567890, 0)

	var buf bytes.Buffer
	zw := kgzip.NewWriter(&buf)
	zw.Name = "fox.txt"
	zw.ModTime = mt
	_, err := zw.Write(want)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	mr := newMemberReader(bytes.NewReader(buf.Bytes()), 32)
	got, err := readAllMembers(t, mr)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	gotMt, ok := mr.Mtime()
	require.True(t, ok)
	assert.Equal(t, mt.Unix(), gotMt.Unix())

	name, ok := mr.Name()
	require.True(t, ok)
	assert.Equal(t, "fox.txt", name)
}

func TestMemberWriterOracleOutput(t *testing.T) {
	want := bytes.Repeat([]byte("payload "), 512)
	mt := time.Unix(1700000000, 0)

	var buf bytes.Buffer
	mw, err := newMemberWriter(&buf, 6, "payload.bin", mt)
	require.NoError(t, err)
	_, err = mw.Write(want)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	zr, err := kgzip.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "payload.bin", zr.Name)
	assert.Equal(t, mt.Unix(), zr.ModTime.Unix())
}

func TestMemberHeaderNameLatin1(t *testing.T) {
	const name = "café.txt" // é is 0xe9 on the wire, two bytes in Go

	var buf bytes.Buffer
	mw, err := newMemberWriter(&buf, 6, name, time.Time{})
	require.NoError(t, err)
	_, err = mw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	zr, err := kgzip.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, name, zr.Name, "reference reader must see the latin-1 name")
	_, err = io.ReadAll(zr)
	require.NoError(t, err)

	var oracle bytes.Buffer
	zw := kgzip.NewWriter(&oracle)
	zw.Name = name
	_, err = zw.Write([]byte("y"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	mr := newMemberReader(bytes.NewReader(oracle.Bytes()), 32)
	_, err = readAllMembers(t, mr)
	require.NoError(t, err)
	got, ok := mr.Name()
	require.True(t, ok)
	assert.Equal(t, name, got, "wire byte 0xe9 must decode to é, not invalid UTF-8")
}

func TestMemberWriterEmptyMember(t *testing.T) {
	var buf bytes.Buffer
	mw, err := newMemberWriter(&buf, 6, "", time.Time{})
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	require.NoError(t, mw.Close(), "second close is a no-op")

	zr, err := kgzip.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemberWriterXFL(t *testing.T) {
	for level, want := range map[int]byte{9: 2, 1: 4, 6: 0} {
		var buf bytes.Buffer
		mw, err := newMemberWriter(&buf, level, "", time.Time{})
		require.NoError(t, err)
		_, err = mw.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		assert.Equal(t, want, buf.Bytes()[8], "xfl for level %d", level)
	}
}

func TestMemberWriterFlushKeepsMemberOpen(t *testing.T) {
	var buf bytes.Buffer
	mw, err := newMemberWriter(&buf, 6, "", time.Time{})
	require.NoError(t, err)

	_, err = mw.Write([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, mw.Flush())
	flushed := buf.Len()
	assert.Greater(t, flushed, 10, "sync flush must push compressed bytes past the header")

	_, err = mw.Write([]byte(" second"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	zr, err := kgzip.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "first second", string(got))
}

func TestMemberReaderMultiMember(t *testing.T) {
	stream := append(mustGzip(t, []byte("A")), mustGzip(t, []byte("B"))...)
	mr := newMemberReader(bytes.NewReader(stream), 32)
	got, err := readAllMembers(t, mr)
	require.NoError(t, err)
	assert.Equal(t, "AB", string(got))
}

func TestMemberReaderZeroPadding(t *testing.T) {
	stream := append(mustGzip(t, []byte("padded")), make([]byte, 16)...)
	mr := newMemberReader(bytes.NewReader(stream), 32)
	got, err := readAllMembers(t, mr)
	require.NoError(t, err)
	assert.Equal(t, "padded", string(got))
}

func TestMemberReaderPaddingThenGarbage(t *testing.T) {
	stream := append(mustGzip(t, []byte("ok")), make([]byte, 8)...)
	stream = append(stream, []byte("garbage")...)
	mr := newMemberReader(bytes.NewReader(stream), 32)
	_, err := readAllMembers(t, mr)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "magic", fe.Check)
}

func TestMemberReaderEmptyInput(t *testing.T) {
	mr := newMemberReader(bytes.NewReader(nil), 32)
	got, err := readAllMembers(t, mr)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemberReaderBadMagic(t *testing.T) {
	mr := newMemberReader(bytes.NewReader([]byte("this is not gzip data")), 32)
	_, err := readAllMembers(t, mr)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "magic", fe.Check)
}

func TestMemberReaderBadMethod(t *testing.T) {
	stream := mustGzip(t, []byte("x"))
	stream[2] = 7
	mr := newMemberReader(bytes.NewReader(stream), 32)
	_, err := readAllMembers(t, mr)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "method", fe.Check)
}

func TestMemberReaderCorruptCRC(t *testing.T) {
	stream := mustGzip(t, []byte("checksummed content"))
	stream[len(stream)-6] ^= 0xff // inside the stored CRC32
	mr := newMemberReader(bytes.NewReader(stream), 32)
	_, err := readAllMembers(t, mr)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "crc32", fe.Check)
}

func TestMemberReaderCorruptSize(t *testing.T) {
	stream := mustGzip(t, []byte("sized content"))
	stream[len(stream)-1] ^= 0xff // high byte of the stored size
	mr := newMemberReader(bytes.NewReader(stream), 32)
	_, err := readAllMembers(t, mr)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "size", fe.Check)
}

func TestMemberReaderTruncated(t *testing.T) {
	stream := mustGzip(t, bytes.Repeat([]byte("truncate me "), 100))
	mr := newMemberReader(bytes.NewReader(stream[:len(stream)/2]), 32)
	_, err := readAllMembers(t, mr)
	require.Error(t, err)
	var fe *FormatError
	assert.ErrorAs(t, err, &fe)
}

// buildHeaderCRCMember assembles a member with FEXTRA and FHCRC by
// hand, since neither writer emits those fields.
func buildHeaderCRCMember(t *testing.T, payload []byte, corruptSum bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte{gzipID1, gzipID2, gzipDeflate, flagExtra | flagHdrCRC, 0, 0, 0, 0, 0, osUnknown})
	buf.Write([]byte{4, 0})             // XLEN
	buf.Write([]byte{'T', 'S', 1, 'x'}) // one extra subfield
	sum := uint16(crc32.ChecksumIEEE(buf.Bytes()))
	if corruptSum {
		sum ^= 0xffff
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, sum))

	fw, err := flate.NewWriter(&buf, 6)
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	require.NoError(t, binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(payload)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(payload))))
	return buf.Bytes()
}

func TestMemberReaderHeaderCRC(t *testing.T) {
	stream := buildHeaderCRCMember(t, []byte("extra fields"), false)
	mr := newMemberReader(bytes.NewReader(stream), 32)
	got, err := readAllMembers(t, mr)
	require.NoError(t, err)
	assert.Equal(t, "extra fields", string(got))
}

func TestMemberReaderHeaderCRCMismatch(t *testing.T) {
	stream := buildHeaderCRCMember(t, []byte("extra fields"), true)
	mr := newMemberReader(bytes.NewReader(stream), 32)
	_, err := readAllMembers(t, mr)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "header checksum", fe.Check)
}

func TestMemberReaderReset(t *testing.T) {
	stream := mustGzip(t, []byte("rewound"))
	src := bytes.NewReader(stream)
	mr := newMemberReader(src, 32)

	got, err := readAllMembers(t, mr)
	require.NoError(t, err)
	require.Equal(t, "rewound", string(got))

	_, err = src.Seek(0, io.SeekStart)
	require.NoError(t, err)
	mr.reset(src)
	got, err = readAllMembers(t, mr)
	require.NoError(t, err)
	assert.Equal(t, "rewound", string(got))
}
