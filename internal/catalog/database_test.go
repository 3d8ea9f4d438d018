package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apkaspell/bdb/internal/bloom"
	"github.com/apkaspell/bdb/internal/tlv"
)

func TestNewDatabaseIsEmpty(t *testing.T) {
	db := New(3)
	require.Equal(t, uint8(3), db.ID)
	require.Equal(t, 0, db.BFRegistry.Count())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	db := New(9)
	buf := db.Encode().AppendTo(nil)

	dec, err := tlv.Decode(buf)
	require.NoError(t, err)

	got, err := Decode(dec)
	require.NoError(t, err)
	require.Equal(t, db.ID, got.ID)
}

func TestAddFilterToRegistry(t *testing.T) {
	db := New(0)
	bf := bloom.NewStructureDefault(0, db.ID)
	require.NoError(t, db.BFRegistry.Add(bf, []byte{bf.ID}))

	got, ok := db.BFRegistry.Get([]byte{0})
	require.True(t, ok)
	require.Same(t, bf, got)
}
