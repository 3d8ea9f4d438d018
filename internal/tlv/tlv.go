// Package tlv implements the self-describing Type-Length-Value framing used
// to persist every long-lived object in the database: a one-byte type tag,
// an eight-byte little-endian length, and the value itself. Nested objects
// (a BloomFilterStructure carrying a BitVec, a Ctl snapshot carrying
// Databases and BloomFilterStructures) are TLVs whose value is itself a
// concatenation of child TLVs and scalar fields.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Type is the one-byte discriminant written as the first byte of every TLV.
type Type uint8

const (
	TypeCtl Type = iota
	TypeDatabase
	TypeBloomFilterStructure
	TypeBitVec
)

// ErrUnknownType is returned when a TLV's type tag does not match any of the
// four known discriminants.
var ErrUnknownType = errors.New("tlv: unknown type tag")

// headerLen is the fixed 1-byte-tag + 8-byte-length prefix of every TLV.
const headerLen = 1 + 8

func parseType(b byte) (Type, error) {
	switch Type(b) {
	case TypeCtl, TypeDatabase, TypeBloomFilterStructure, TypeBitVec:
		return Type(b), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownType, b)
	}
}

// Decoded is a parsed TLV header: its type and a view into the caller's
// buffer holding its value. It does not copy.
type Decoded struct {
	Type Type
	Val  []byte
}

// Decode parses one TLV from the front of buf. It does not consume trailing
// bytes; callers use Len to advance past this TLV when decoding a sequence.
func Decode(buf []byte) (Decoded, error) {
	if len(buf) < headerLen {
		return Decoded{}, fmt.Errorf("tlv: decode: %w", io.ErrUnexpectedEOF)
	}
	typ, err := parseType(buf[0])
	if err != nil {
		return Decoded{}, err
	}
	n := binary.LittleEndian.Uint64(buf[1:headerLen])
	end, ok := addOverflow(headerLen, n)
	if !ok {
		return Decoded{}, errors.New("tlv: decode: end offset overflow")
	}
	if uint64(len(buf)) < end {
		return Decoded{}, fmt.Errorf("tlv: decode: %w", io.ErrUnexpectedEOF)
	}
	return Decoded{Type: typ, Val: buf[headerLen:end]}, nil
}

// Len reports the total byte span this TLV occupies (header + value), so a
// caller walking a sequence of sibling TLVs can advance past it.
func (d Decoded) Len() int {
	return headerLen + len(d.Val)
}

func addOverflow(a int, b uint64) (uint64, bool) {
	sum := uint64(a) + b
	if sum < b {
		return 0, false
	}
	return sum, true
}

// DecodeUint8 reads a single byte off the front of buf.
func DecodeUint8(buf []byte) (uint8, error) {
	if len(buf) < 1 {
		return 0, fmt.Errorf("tlv: decode uint8: %w", io.ErrUnexpectedEOF)
	}
	return buf[0], nil
}

// DecodeUint64 reads 8 little-endian bytes off the front of buf.
func DecodeUint64(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, fmt.Errorf("tlv: decode uint64: %w", io.ErrUnexpectedEOF)
	}
	return binary.LittleEndian.Uint64(buf[:8]), nil
}

// DecodeUint64Slice decodes all of buf as a concatenation of 8-byte
// little-endian words; the slice length is implied by len(buf)/8 since the
// enclosing TLV already fixes the total length.
func DecodeUint64Slice(buf []byte) ([]uint64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("tlv: decode uint64 slice: buffer length %d not a multiple of 8", len(buf))
	}
	out := make([]uint64, len(buf)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return out, nil
}

// Encoder builds up the value bytes of one TLV before it is written out,
// either standalone (AppendTo) or nested inside a parent's value (PutNested).
type Encoder struct {
	Type Type
	Val  []byte
}

// NewEncoder starts a fresh, empty-valued TLV of the given type.
func NewEncoder(t Type) *Encoder {
	return &Encoder{Type: t}
}

// PutUint8 appends a single byte to the value.
func (e *Encoder) PutUint8(x uint8) {
	e.Val = append(e.Val, x)
}

// PutUint64 appends 8 little-endian bytes to the value.
func (e *Encoder) PutUint64(x uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], x)
	e.Val = append(e.Val, b[:]...)
}

// PutUint64Slice appends each word as 8 little-endian bytes, concatenated.
func (e *Encoder) PutUint64Slice(words []uint64) {
	for _, w := range words {
		e.PutUint64(w)
	}
}

// PutBytes appends raw bytes verbatim (used for already-serialized nested
// TLV bytes, or raw byte-string fields).
func (e *Encoder) PutBytes(b []byte) {
	e.Val = append(e.Val, b...)
}

// PutNested appends child's full TLV framing (tag + length + value) into
// this encoder's value, implementing the recursive "nested TLV" layout.
func (e *Encoder) PutNested(child *Encoder) {
	e.PutUint8(uint8(child.Type))
	e.PutUint64(uint64(len(child.Val)))
	e.PutBytes(child.Val)
}

// Len reports the total byte span (header + value) this TLV will occupy
// once appended.
func (e *Encoder) Len() int {
	return headerLen + len(e.Val)
}

// AppendTo writes this TLV's full framing (tag + length + value) onto dst
// and returns the extended slice.
func (e *Encoder) AppendTo(dst []byte) []byte {
	dst = append(dst, uint8(e.Type))
	var lb [8]byte
	binary.LittleEndian.PutUint64(lb[:], uint64(len(e.Val)))
	dst = append(dst, lb[:]...)
	dst = append(dst, e.Val...)
	return dst
}
