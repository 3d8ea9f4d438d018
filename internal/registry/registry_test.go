package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddGetUniqueness(t *testing.T) {
	r := New[string]()
	require.NoError(t, r.Add("first", []byte{0}))
	require.NoError(t, r.Add("second", []byte{1}))

	err := r.Add("dup", []byte{0})
	require.ErrorIs(t, err, ErrDuplicateKey)

	got, ok := r.Get([]byte{0})
	require.True(t, ok)
	require.Equal(t, "first", got)

	got, ok = r.Get([]byte{1})
	require.True(t, ok)
	require.Equal(t, "second", got)

	_, ok = r.Get([]byte{2})
	require.False(t, ok)

	require.Equal(t, 2, r.Count())
}

func TestListInsertionOrder(t *testing.T) {
	r := New[int]()
	for i, id := range []byte{5, 3, 9} {
		require.NoError(t, r.Add(i*10, []byte{id}))
	}
	require.Equal(t, []int{0, 10, 20}, r.List())
}

func TestClear(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Add(1, []byte{0}))
	r.Clear()
	require.Equal(t, 0, r.Count())
	_, ok := r.Get([]byte{0})
	require.False(t, ok)
	require.NoError(t, r.Add(2, []byte{0}))
}

func TestPointerElementsMutateInPlace(t *testing.T) {
	type counter struct{ n int }
	r := New[*counter]()
	require.NoError(t, r.Add(&counter{}, []byte{0}))

	got, _ := r.Get([]byte{0})
	got.n++

	got2, _ := r.Get([]byte{0})
	require.Equal(t, 1, got2.n)
}
