package bitvec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apkaspell/bdb/internal/tlv"
)

func TestWordSizing(t *testing.T) {
	cases := []struct {
		size     uint64
		words    int
	}{
		{1, 1},
		{wordBits - 1, 1},
		{5*wordBits + 1, 6},
		{8*wordBits - 63, 8},
		{0, 1},
	}
	for _, c := range cases {
		bv := New(c.size)
		require.Lenf(t, bv.words, c.words, "size=%d", c.size)
	}
}

func TestSetAndIsSet(t *testing.T) {
	cases := []struct {
		capacity uint64
		stride   uint64
	}{
		{32, 2},
		{1000, 10},
		{129, 1},
		{55, 54},
	}
	for _, c := range cases {
		bv := New(c.capacity)
		for i := uint64(0); i < c.capacity; i++ {
			if i%c.stride == 0 {
				require.NoError(t, bv.Set(i))
			}
		}
		for i := uint64(0); i < c.capacity; i++ {
			got, err := bv.IsSet(i)
			require.NoError(t, err)
			want := i%c.stride == 0
			require.Equalf(t, want, got, "capacity=%d stride=%d i=%d", c.capacity, c.stride, i)
		}
	}
}

func TestOutOfRange(t *testing.T) {
	bv := New(10)
	require.ErrorIs(t, bv.Set(10), ErrOutOfRange)
	_, err := bv.IsSet(10)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestEndianness(t *testing.T) {
	bv := New(64)
	require.NoError(t, bv.Set(0))
	require.Len(t, bv.words, 1)
	require.Equal(t, uint64(1), bv.words[0])
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	bv := New(130)
	for _, i := range []uint64{0, 1, 63, 64, 65, 129} {
		require.NoError(t, bv.Set(i))
	}

	buf := bv.Encode().AppendTo(nil)
	dec, err := tlv.Decode(buf)
	require.NoError(t, err)

	got, err := Decode(dec)
	require.NoError(t, err)
	require.Equal(t, bv.size, got.size)
	require.Equal(t, bv.words, got.words)
}
