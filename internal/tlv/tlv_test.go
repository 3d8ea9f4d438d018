package tlv

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder(TypeDatabase)
	enc.PutUint8(7)

	buf := enc.AppendTo(nil)
	require.Equal(t, enc.Len(), len(buf))

	dec, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, TypeDatabase, dec.Type)
	require.Equal(t, []byte{7}, dec.Val)
	require.Equal(t, len(buf), dec.Len())
}

func TestDecodeNested(t *testing.T) {
	inner := NewEncoder(TypeBitVec)
	inner.PutUint64(64)
	inner.PutUint64Slice([]uint64{1, 2, 3})

	outer := NewEncoder(TypeBloomFilterStructure)
	outer.PutUint8(1)
	outer.PutUint8(0)
	outer.PutNested(inner)

	buf := outer.AppendTo(nil)
	dec, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, TypeBloomFilterStructure, dec.Type)

	innerDec, err := Decode(dec.Val[2:])
	require.NoError(t, err)
	require.Equal(t, TypeBitVec, innerDec.Type)

	size, err := DecodeUint64(innerDec.Val)
	require.NoError(t, err)
	require.Equal(t, uint64(64), size)

	words, err := DecodeUint64Slice(innerDec.Val[8:])
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, words)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte{0, 1, 2})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = Decode([]byte{99, 0, 0, 0, 0, 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrUnknownType)

	// claimed length exceeds buffer
	buf := []byte{byte(TypeDatabase), 5, 0, 0, 0, 0, 0, 0, 0}
	_, err = Decode(buf)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeUint64SliceBadLength(t *testing.T) {
	_, err := DecodeUint64Slice([]byte{1, 2, 3})
	require.Error(t, err)
}
