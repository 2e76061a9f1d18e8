package pagecache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLruIndexFrontIsMostRecentlyTouched(t *testing.T) {
	idx := newLruIndex()
	k0 := PageKey{ID: 1, Index: 0}
	k1 := PageKey{ID: 1, Index: 1}
	k2 := PageKey{ID: 1, Index: 2}

	idx.InsertFront(newPage(k0, 4096))
	idx.InsertFront(newPage(k1, 4096))
	idx.InsertFront(newPage(k2, 4096))

	idx.Touch(k0)

	// Popping from the back should now yield k1, the new LRU tail.
	p, ok := idx.PopBack()
	require.True(t, ok)
	require.Equal(t, k1, p.Key())
}

func TestLruIndexPopBackOnEmpty(t *testing.T) {
	idx := newLruIndex()
	_, ok := idx.PopBack()
	require.False(t, ok)
}

func TestLruIndexRemove(t *testing.T) {
	idx := newLruIndex()
	k := PageKey{ID: 1, Index: 0}
	idx.InsertFront(newPage(k, 4096))
	idx.Remove(k)

	_, ok := idx.Get(k)
	require.False(t, ok)
	require.Equal(t, 0, idx.Len())
}
