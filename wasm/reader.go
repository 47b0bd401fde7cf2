package wasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrOverflow is returned when a LEB128 value does not fit in 32 bits.
var ErrOverflow = errors.New("leb128: overflow")

// Reader decodes binary-format primitives from a byte slice.
type Reader struct {
	data []byte
	off  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position is the offset of the next unread byte.
func (r *Reader) Position() int { return r.off }

// Len is the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.off }

func (r *Reader) ReadByte() (byte, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, r.at(io.ErrUnexpectedEOF)
	}
	out := append([]byte(nil), r.data[r.off:r.off+n]...)
	r.off += n
	return out, nil
}

func (r *Reader) Skip(n int) error {
	if n < 0 || n > r.Len() {
		return r.at(io.ErrUnexpectedEOF)
	}
	r.off += n
	return nil
}

// ReadU32 decodes an unsigned LEB128 value of at most five bytes.
func (r *Reader) ReadU32() (uint32, error) {
	var v uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, r.at(ErrOverflow)
}

// ReadU32LE decodes a fixed-width little-endian uint32, as used by the header.
func (r *Reader) ReadU32LE() (uint32, error) {
	if r.Len() < 4 {
		return 0, r.at(io.ErrUnexpectedEOF)
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

// ReadName decodes a length-prefixed UTF-8 name.
func (r *Reader) ReadName() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", r.at(errors.New("name is not valid UTF-8"))
	}
	return string(b), nil
}

func (r *Reader) at(err error) error {
	return fmt.Errorf("offset %d: %w", r.off, err)
}

// ParseError locates a decoding failure within the binary.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("wasm: offset %d: %v", e.Position, e.Err)
	}
	return fmt.Sprintf("wasm: %s at offset %d: %v", e.Section, e.Position, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WrapError tags err with the current offset and section name.
func (r *Reader) WrapError(section string, err error) error {
	return &ParseError{Err: err, Section: section, Position: r.off}
}
