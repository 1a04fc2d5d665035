package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStoreContract exercises the five operations spec §4.3 names against
// the in-memory fake. RocksDB satisfies the identical contract; the fake
// lets these run without a native RocksDB library present.
func TestStoreContract(t *testing.T) {
	var ctx = context.Background()
	var s = NewMemory()

	_, ok, err := s.Get(ctx, "EOFS")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(ctx, "EOFS", []byte(`[1,2]`)))
	v, ok, err := s.Get(ctx, "EOFS")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `[1,2]`, string(v))

	require.NoError(t, s.Append(ctx, "BOOKS_1", []byte("A\x00X")))
	require.NoError(t, s.Append(ctx, "BOOKS_1", []byte("B\x00Y")))
	require.NoError(t, s.Append(ctx, "BOOKS_2", []byte("C\x00Z")))

	keys, err := s.Keys(ctx, "BOOKS_")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, "BOOKS_1", keys[0].Key)
	require.Equal(t, [][]byte{[]byte("A\x00X"), []byte("B\x00Y")}, keys[0].Records)
	require.Equal(t, "BOOKS_2", keys[1].Key)

	require.NoError(t, s.DeleteKeys(ctx, "BOOKS_1"))
	keys, err = s.Keys(ctx, "BOOKS_")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "BOOKS_2", keys[0].Key)
}

func TestSplitRecordsTruncatesTrailingPartial(t *testing.T) {
	var blob = encodeRecord([]byte("whole"))
	blob = append(blob, 0, 0, 0, 9, 'p', 'a', 'r', 't') // declares length 9, only has 4

	var records = splitRecords(blob)
	require.Equal(t, [][]byte{[]byte("whole")}, records)
}
