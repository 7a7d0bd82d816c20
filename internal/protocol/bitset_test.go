package protocol

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitsetGetSetCardinality(t *testing.T) {
	b := NewBitset(10)
	require.EqualValues(t, 0, b.Cardinality())

	require.NoError(t, b.Set(3, true))
	require.EqualValues(t, 1, b.Cardinality())

	got, err := b.Get(3)
	require.NoError(t, err)
	require.True(t, got)

	// Setting to the same value is a no-op on cardinality.
	require.NoError(t, b.Set(3, true))
	require.EqualValues(t, 1, b.Cardinality())

	require.NoError(t, b.Set(3, false))
	require.EqualValues(t, 0, b.Cardinality())
}

func TestBitsetOutOfRange(t *testing.T) {
	b := NewBitset(4)
	_, err := b.Get(4)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	require.ErrorIs(t, b.Set(100, true), ErrIndexOutOfRange)
}

func TestBitsetCardinalityAfterRandomInterleaving(t *testing.T) {
	const n = 200
	b := NewBitset(n)
	want := make(map[uint32]bool)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 5000; i++ {
		idx := uint32(rng.Intn(n))
		v := rng.Intn(2) == 1
		require.NoError(t, b.Set(idx, v))
		want[idx] = v
	}

	var expected uint32
	for _, v := range want {
		if v {
			expected++
		}
	}
	require.Equal(t, expected, b.Cardinality())
}

func TestBitsetMarshalRoundTrip(t *testing.T) {
	b := NewBitset(17)
	require.NoError(t, b.Set(0, true))
	require.NoError(t, b.Set(16, true))
	require.NoError(t, b.Set(8, true))

	blob := b.MarshalBinary()
	got, err := UnmarshalBitset(blob)
	require.NoError(t, err)
	require.Equal(t, b.Cardinality(), got.Cardinality())
	require.Equal(t, b.Len(), got.Len())

	for i := uint32(0); i < 17; i++ {
		want, err := b.Get(i)
		require.NoError(t, err)
		have, err := got.Get(i)
		require.NoError(t, err)
		require.Equal(t, want, have)
	}
}

func TestUnmarshalBitsetRejectsTruncated(t *testing.T) {
	_, err := UnmarshalBitset([]byte{1, 2, 3})
	require.Error(t, err)
}
