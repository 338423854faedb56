package mem

import (
	"encoding/binary"
	"math"

	"github.com/tacitlang/tacit/internal/errs"
)

// ByteSegment is a fixed-capacity, byte-addressable region used for both
// the CODE segment (bytecode) and the STRING segment (the digest). Both
// need the same typed, bounds-checked 8/16/32-bit access that
// emul/memory.go provides over its word-addressed physical memory; here
// the unit is the byte rather than the 16-bit word since code and
// strings are not cell-aligned.
type ByteSegment struct {
	buf []byte
	len int // high-water mark; buf beyond len is unused capacity
	cap int
	op  string // operation name used in OutOfBounds/overflow errors
}

// NewByteSegment allocates a segment with the given byte capacity.
func NewByteSegment(capacity int, opName string) *ByteSegment {
	return &ByteSegment{buf: make([]byte, capacity), cap: capacity, op: opName}
}

func (s *ByteSegment) Len() int      { return s.len }
func (s *ByteSegment) Cap() int      { return s.cap }
func (s *ByteSegment) Bytes() []byte { return s.buf[:s.len] }

func (s *ByteSegment) bounds(off, width int) error {
	if off < 0 || width < 0 || off+width > s.cap {
		return errs.New(errs.OutOfBounds, s.op, "address out of segment range")
	}
	return nil
}

// Read8 reads one byte at offset off.
func (s *ByteSegment) Read8(off int) (uint8, error) {
	if err := s.bounds(off, 1); err != nil {
		return 0, err
	}
	return s.buf[off], nil
}

// Write8 writes one byte at offset off, advancing the high-water mark
// if this write extends the used length.
func (s *ByteSegment) Write8(off int, v uint8) error {
	if err := s.bounds(off, 1); err != nil {
		return err
	}
	s.buf[off] = v
	s.bump(off + 1)
	return nil
}

// Read16 reads a little-endian uint16 at offset off.
func (s *ByteSegment) Read16(off int) (uint16, error) {
	if err := s.bounds(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(s.buf[off:]), nil
}

// Write16 writes a little-endian uint16 at offset off.
func (s *ByteSegment) Write16(off int, v uint16) error {
	if err := s.bounds(off, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(s.buf[off:], v)
	s.bump(off + 2)
	return nil
}

// ReadFloat32 reads a little-endian IEEE-754 float32 at offset off.
func (s *ByteSegment) ReadFloat32(off int) (float32, error) {
	if err := s.bounds(off, 4); err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint32(s.buf[off:])
	return math.Float32frombits(bits), nil
}

// WriteFloat32 writes a little-endian IEEE-754 float32 at offset off.
func (s *ByteSegment) WriteFloat32(off int, v float32) error {
	if err := s.bounds(off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(s.buf[off:], math.Float32bits(v))
	s.bump(off + 4)
	return nil
}

// Append writes b at the current high-water mark and returns the offset
// it was written at, growing len by len(b). Used by the digest and the
// compiler's emitter primitives.
func (s *ByteSegment) Append(b []byte) (int, error) {
	start := s.len
	if err := s.bounds(start, len(b)); err != nil {
		return 0, err
	}
	copy(s.buf[start:], b)
	s.bump(start + len(b))
	return start, nil
}

func (s *ByteSegment) bump(newLen int) {
	if newLen > s.len {
		s.len = newLen
	}
}
