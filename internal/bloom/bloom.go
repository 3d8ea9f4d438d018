// Package bloom implements a probabilistic set over byte strings, using the
// classic two-base-hash plus Kirsch-Mitzenmacher-extension construction:
// k derived positions from two independent hashes rather than k independent
// hash functions.
package bloom

import (
	"fmt"

	"github.com/apkaspell/bdb/internal/bitvec"
	"github.com/apkaspell/bdb/internal/tlv"
)

// DefaultBitCnt and DefaultHfnCnt are the parameters a freshly created
// filter gets when the caller does not ask for anything else.
const (
	DefaultBitCnt = 1000
	DefaultHfnCnt = 2
)

// Filter is a Bloom filter over a fixed bit domain.
type Filter struct {
	Bits   *bitvec.BitVec
	HfnCnt uint64
	BitCnt uint64
}

// NewDefault builds a filter with the default 1000-bit domain and 2 hash
// functions.
func NewDefault() *Filter {
	return New(DefaultBitCnt, DefaultBitCnt, DefaultHfnCnt)
}

// New builds a filter with an explicit bit-vector capacity, modulus, and
// hash function count. capacity and bitCnt are usually equal; capacity
// governs the underlying BitVec's allocation, bitCnt is the modulus used by
// the hash functions.
func New(capacity, bitCnt, hfnCnt uint64) *Filter {
	return &Filter{
		Bits:   bitvec.New(capacity),
		BitCnt: bitCnt,
		HfnCnt: hfnCnt,
	}
}

// hash0 is djb2.
func hash0(bytes []byte, bitCnt uint64) uint64 {
	h := uint64(5381)
	for _, b := range bytes {
		h = (h<<5 + h) + uint64(b)
	}
	return h % bitCnt
}

// hash1 is sdbm.
func hash1(bytes []byte, bitCnt uint64) uint64 {
	h := uint64(0)
	for _, b := range bytes {
		h = uint64(b) + (h << 6) + (h << 16) - h
	}
	return h % bitCnt
}

// positions returns every bit index the filter touches for x: h0, h1, and
// the Kirsch-Mitzenmacher-derived indices for hash functions 3..HfnCnt.
func (f *Filter) positions(x []byte) []uint64 {
	h0 := hash0(x, f.BitCnt)
	h1 := hash1(x, f.BitCnt)

	if f.HfnCnt < 3 {
		return []uint64{h0, h1}
	}

	out := make([]uint64, 0, f.HfnCnt)
	out = append(out, h0, h1)
	for i := uint64(3); i <= f.HfnCnt; i++ {
		out = append(out, (h0+h1*i)%f.BitCnt)
	}
	return out
}

// Add inserts x into the filter by setting all of its derived bit
// positions.
func (f *Filter) Add(x []byte) error {
	for _, pos := range f.positions(x) {
		if err := f.Bits.Set(pos); err != nil {
			return fmt.Errorf("bloom: add: %w", err)
		}
	}
	return nil
}

// Has reports whether x might be in the set: true means "possibly present",
// false means "definitely absent."
func (f *Filter) Has(x []byte) (bool, error) {
	for _, pos := range f.positions(x) {
		set, err := f.Bits.IsSet(pos)
		if err != nil {
			return false, fmt.Errorf("bloom: has: %w", err)
		}
		if !set {
			return false, nil
		}
	}
	return true, nil
}

// Structure is the persisted wrapper around a Filter: its identity within a
// database plus a back-pointer to the owning database id, used only to
// reconstruct registry membership during snapshot load.
type Structure struct {
	DBID  uint8
	ID    uint8
	Inner *Filter
}

// NewStructureDefault builds a filter-structure with default parameters.
func NewStructureDefault(id, dbid uint8) *Structure {
	return &Structure{DBID: dbid, ID: id, Inner: NewDefault()}
}

// NewStructure builds a filter-structure with explicit parameters.
func NewStructure(id, dbid uint8, capacity, bitCnt, hfnCnt uint64) *Structure {
	return &Structure{DBID: dbid, ID: id, Inner: New(capacity, bitCnt, hfnCnt)}
}

// Encode produces this structure's TLV encoding: id, dbid, hfn_cnt, bit_cnt,
// then the nested BitVec TLV.
func (s *Structure) Encode() (*tlv.Encoder, error) {
	enc := tlv.NewEncoder(tlv.TypeBloomFilterStructure)
	enc.PutUint8(s.ID)
	enc.PutUint8(s.DBID)
	enc.PutUint8(uint8(s.Inner.HfnCnt))
	enc.PutUint64(s.Inner.BitCnt)
	enc.PutNested(s.Inner.Bits.Encode())
	return enc, nil
}

// Decode reconstructs a Structure from a previously-decoded
// BloomFilterStructure TLV.
//
// The encoded hfn_cnt byte at offset 2 is intentionally ignored: every
// filter reloaded from a snapshot gets HfnCnt hard-coded back
// to 2, mirroring the asymmetry in the system this was modeled on (see
// DESIGN.md, open question 2). A filter created with more than 2 hash
// functions and then persisted does not round-trip its hash-function count.
func Decode(d tlv.Decoded) (*Structure, error) {
	if d.Type != tlv.TypeBloomFilterStructure {
		return nil, fmt.Errorf("bloom: decode: expected BloomFilterStructure TLV, got type %d", d.Type)
	}
	buf := d.Val
	id, err := tlv.DecodeUint8(buf)
	if err != nil {
		return nil, fmt.Errorf("bloom: decode id: %w", err)
	}
	dbid, err := tlv.DecodeUint8(buf[1:])
	if err != nil {
		return nil, fmt.Errorf("bloom: decode dbid: %w", err)
	}
	bitCnt, err := tlv.DecodeUint64(buf[3:])
	if err != nil {
		return nil, fmt.Errorf("bloom: decode bit_cnt: %w", err)
	}
	bvDec, err := tlv.Decode(buf[11:])
	if err != nil {
		return nil, fmt.Errorf("bloom: decode nested bitvec: %w", err)
	}
	bits, err := bitvec.Decode(bvDec)
	if err != nil {
		return nil, fmt.Errorf("bloom: decode nested bitvec: %w", err)
	}
	return &Structure{
		DBID: dbid,
		ID:   id,
		Inner: &Filter{
			Bits:   bits,
			HfnCnt: 2,
			BitCnt: bitCnt,
		},
	}, nil
}
