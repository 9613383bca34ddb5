package versioninfo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

const (
	typeBinary uint16 = 0
	typeText   uint16 = 1

	headerSize = 6
)

var (
	// ErrMalformed is returned for version data that cannot be decoded.
	ErrMalformed = errors.New("malformed version info")

	//nolint:gochecknoglobals // Stateless encoding shared by the codec.
	utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// block is the node shared by every level of VS_VERSIONINFO:
// wLength, wValueLength, wType, key, padding, value, padding, children.
type block struct {
	key      string
	typ      uint16
	value    []byte
	children []*block
}

// parseBlock decodes the block starting at off. Offsets are relative to the
// start of the resource so alignment matches the file layout.
func parseBlock(data []byte, off int) (*block, int, error) {
	if off+headerSize > len(data) {
		return nil, 0, fmt.Errorf("%w: truncated header at %d", ErrMalformed, off)
	}

	length := int(binary.LittleEndian.Uint16(data[off:]))
	valueLength := int(binary.LittleEndian.Uint16(data[off+2:]))
	typ := binary.LittleEndian.Uint16(data[off+4:])

	if length < headerSize || off+length > len(data) {
		return nil, 0, fmt.Errorf("%w: block at %d has length %d", ErrMalformed, off, length)
	}

	end := off + length

	key, pos, err := readKey(data[:end], off+headerSize)
	if err != nil {
		return nil, 0, err
	}

	b := &block{key: key, typ: typ}

	pos = align4(pos)

	size := valueLength
	if typ == typeText {
		size *= 2
	}

	if pos+size > end {
		size = max(end-pos, 0)
	}

	if size > 0 {
		b.value = bytes.Clone(data[pos : pos+size])
	}

	pos = align4(pos + size)

	for pos+headerSize <= end {
		child, n, err := parseBlock(data[:end], pos)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", key, err)
		}

		b.children = append(b.children, child)
		pos = align4(pos + n)
	}

	return b, length, nil
}

func readKey(data []byte, pos int) (string, int, error) {
	for i := pos; i+1 < len(data); i += 2 {
		if data[i] == 0 && data[i+1] == 0 {
			key, err := decodeText(data[pos:i])
			if err != nil {
				return "", 0, err
			}

			return key, i + 2, nil
		}
	}

	return "", 0, fmt.Errorf("%w: unterminated key at %d", ErrMalformed, pos)
}

// encode serializes b with recomputed lengths. The result carries no
// trailing padding; parents pad before each child.
func (b *block) encode() []byte {
	var buf bytes.Buffer

	buf.Write(make([]byte, headerSize))
	buf.Write(encodeText(b.key))
	pad4(&buf)
	buf.Write(b.value)

	for _, child := range b.children {
		pad4(&buf)
		buf.Write(child.encode())
	}

	valueLength := len(b.value)
	if b.typ == typeText {
		valueLength /= 2
	}

	out := buf.Bytes()
	binary.LittleEndian.PutUint16(out[0:], uint16(len(out)))    //nolint:gosec // Version resources stay far below 64 KiB.
	binary.LittleEndian.PutUint16(out[2:], uint16(valueLength)) //nolint:gosec // Bounded by the block length.
	binary.LittleEndian.PutUint16(out[4:], b.typ)

	return out
}

func (b *block) child(key string) *block {
	for _, c := range b.children {
		if c.key == key {
			return c
		}
	}

	return nil
}

// text returns the value of a text block up to its first NUL.
func (b *block) text() (string, error) {
	s, err := decodeText(b.value)
	if err != nil {
		return "", err
	}

	if i := indexNUL(s); i >= 0 {
		s = s[:i]
	}

	return s, nil
}

func textBlock(key, value string) *block {
	return &block{key: key, typ: typeText, value: encodeText(value)}
}

// encodeText returns NUL-terminated UTF-16LE.
func encodeText(s string) []byte {
	out, err := utf16le.NewEncoder().Bytes([]byte(strings.ToValidUTF8(s, "\uFFFD") + "\x00"))
	if err != nil {
		return []byte{0, 0}
	}

	return out
}

func decodeText(b []byte) (string, error) {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}

	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return string(out), nil
}

func indexNUL(s string) int {
	for i := range len(s) {
		if s[i] == 0 {
			return i
		}
	}

	return -1
}

func align4(n int) int {
	return (n + 3) &^ 3
}

func pad4(buf *bytes.Buffer) {
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}
