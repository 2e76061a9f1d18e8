package pagecache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageWriteAdvancesLength(t *testing.T) {
	p := newPage(PageKey{ID: 1, Index: 0}, 4096)
	require.Equal(t, 0, p.Length())

	n := p.Write([]byte{1, 2, 3}, 10)
	require.Equal(t, 3, n)
	require.Equal(t, 13, p.Length())
	require.False(t, p.IsDirty())
}

func TestPageReadStopsAtLength(t *testing.T) {
	p := newPage(PageKey{ID: 1, Index: 0}, 16)
	p.Write([]byte{1, 2, 3, 4}, 0)

	dst := make([]byte, 16)
	n := p.Read(dst, 2)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{3, 4}, dst[:2])
}

func TestPageReadPastLengthYieldsNothing(t *testing.T) {
	p := newPage(PageKey{ID: 1, Index: 0}, 16)
	p.Write([]byte{1, 2}, 0)

	dst := make([]byte, 16)
	n := p.Read(dst, 5)
	require.Equal(t, 0, n)
}

func TestPageFromFetchCarriesShortReadLength(t *testing.T) {
	buf := make([]byte, 4096)
	for i := 0; i < 100; i++ {
		buf[i] = byte(i)
	}
	p := newPageFromFetch(PageKey{ID: 1, Index: 0}, buf, 100)
	require.Equal(t, 100, p.Length())

	dst := make([]byte, 4096)
	n := p.Read(dst, 0)
	require.Equal(t, 100, n)
}
