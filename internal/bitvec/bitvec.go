// Package bitvec implements a dense bit array over 64-bit words, the
// storage backing a BloomFilter's bit domain.
package bitvec

import (
	"errors"
	"fmt"

	"github.com/apkaspell/bdb/internal/tlv"
)

// wordBits is the width of one storage word. The wire format fixes word
// size at 8 bytes regardless of host architecture, so this is not
// bits.UintSize.
const wordBits = 64

// ErrOutOfRange is returned by Set/IsSet when the bit index is not within
// [0, Size).
var ErrOutOfRange = errors.New("bitvec: index out of range")

// BitVec is a fixed-size bit array. The zero value is not usable; construct
// with New.
type BitVec struct {
	words []uint64
	size  uint64
}

// New allocates a BitVec with at least size addressable bits, all clear.
// Even a zero-size vector gets one backing word, matching the wire format's
// "at least one word even if size == 0" invariant.
func New(size uint64) *BitVec {
	nWords := size / wordBits
	if size%wordBits != 0 {
		nWords++
	}
	if nWords == 0 {
		nWords = 1
	}
	return &BitVec{words: make([]uint64, nWords), size: size}
}

// Size returns the logical bit count this vector was constructed with.
func (b *BitVec) Size() uint64 {
	return b.size
}

func (b *BitVec) idx(i uint64) (word, bit uint64, err error) {
	if i >= b.size {
		return 0, 0, fmt.Errorf("%w: size is %d but requested index is %d", ErrOutOfRange, b.size, i)
	}
	return i / wordBits, i % wordBits, nil
}

// Set turns bit i on.
func (b *BitVec) Set(i uint64) error {
	word, bit, err := b.idx(i)
	if err != nil {
		return err
	}
	b.words[word] |= uint64(1) << bit
	return nil
}

// IsSet reports whether bit i is on.
func (b *BitVec) IsSet(i uint64) (bool, error) {
	word, bit, err := b.idx(i)
	if err != nil {
		return false, err
	}
	return (b.words[word] & (uint64(1) << bit)) != 0, nil
}

// Encode produces this BitVec's TLV encoding: size then the raw word slice.
func (b *BitVec) Encode() *tlv.Encoder {
	enc := tlv.NewEncoder(tlv.TypeBitVec)
	enc.PutUint64(b.size)
	enc.PutUint64Slice(b.words)
	return enc
}

// Decode reconstructs a BitVec from a previously-decoded BitVec TLV.
func Decode(d tlv.Decoded) (*BitVec, error) {
	if d.Type != tlv.TypeBitVec {
		return nil, fmt.Errorf("bitvec: decode: expected BitVec TLV, got type %d", d.Type)
	}
	size, err := tlv.DecodeUint64(d.Val)
	if err != nil {
		return nil, fmt.Errorf("bitvec: decode size: %w", err)
	}
	words, err := tlv.DecodeUint64Slice(d.Val[8:])
	if err != nil {
		return nil, fmt.Errorf("bitvec: decode words: %w", err)
	}
	return &BitVec{words: words, size: size}, nil
}
