package pagecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fillOnMiss(b byte) OnMiss {
	return func(_ context.Context, buf []byte, _ int64) (int, error) {
		for i := range buf {
			buf[i] = b
		}
		return len(buf), nil
	}
}

func noMiss(t *testing.T) OnMiss {
	return func(_ context.Context, _ []byte, _ int64) (int, error) {
		t.Fatal("on_miss should not have been called")
		return 0, nil
	}
}

// scenario a: single read that misses, fills the page, lands in the LRU.
func TestScenarioSingleMissFillsPage(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	dst := make([]byte, 4096)
	n, err := c.Read(context.Background(), 1, dst, 0, fillOnMiss(0xAA))
	require.NoError(t, err)
	require.Equal(t, 4096, n)
	for _, b := range dst {
		require.Equal(t, byte(0xAA), b)
	}
	require.Equal(t, 1, c.lruLenForTest())
}

// scenario b + invariant 1: concurrent reads of the same missing page
// coalesce into exactly one on_miss call.
func TestConcurrentMissesCoalesce(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	var calls int32
	onMiss := func(_ context.Context, buf []byte, _ int64) (int, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		for i := range buf {
			buf[i] = 0xAA
		}
		return len(buf), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dst := make([]byte, 4096)
			n, err := c.Read(context.Background(), 1, dst, 0, onMiss)
			require.NoError(t, err)
			require.Equal(t, 4096, n)
			results[i] = dst
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, r := range results {
		for _, b := range r {
			require.Equal(t, byte(0xAA), b)
		}
	}
}

// scenario c: a write spanning three pages dirties all three, no misses.
func TestWriteSpanningPagesIsWriteAllocate(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	src := make([]byte, 8192)
	for i := range src {
		src[i] = 0x55
	}
	n, err := c.Write(context.Background(), 1, src, 2048)
	require.NoError(t, err)
	require.Equal(t, 8192, n)
	require.Equal(t, 3, c.lruLenForTest())

	for idx := uint64(0); idx < 3; idx++ {
		pg, ok := c.lru.Get(PageKey{ID: 1, Index: idx})
		require.True(t, ok)
		require.True(t, pg.IsDirty())
	}
}

// scenario d: flushing after that write invokes on_flush exactly three
// times, at the right offsets, with each page's contents, and clears every
// dirty flag.
func TestFlushAfterWriteVisitsEveryDirtyPage(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	src := make([]byte, 8192)
	for i := range src {
		src[i] = 0x55
	}
	_, err := c.Write(context.Background(), 1, src, 2048)
	require.NoError(t, err)

	var offsets []int64
	var mu sync.Mutex
	onFlush := func(_ context.Context, data []byte, offset int64) error {
		mu.Lock()
		offsets = append(offsets, offset)
		mu.Unlock()
		// Page 0 was never fetched, so its bytes before the write's start
		// (file offset 2048) are the zero fill of a freshly allocated page.
		for i, b := range data {
			want := byte(0x55)
			if offset+int64(i) < 2048 {
				want = 0x00
			}
			require.Equal(t, want, b)
		}
		return nil
	}

	err = c.Flush(context.Background(), 1, 10240, onFlush)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 4096, 8192}, offsets)

	for idx := uint64(0); idx < 3; idx++ {
		pg, ok := c.lru.Get(PageKey{ID: 1, Index: idx})
		require.True(t, ok)
		require.False(t, pg.IsDirty())
	}
}

// invariant 6: a second flush with no intervening writes calls on_flush
// zero times.
func TestFlushIsIdempotent(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	_, err := c.Write(context.Background(), 1, []byte{1, 2, 3}, 0)
	require.NoError(t, err)

	calls := 0
	err = c.Flush(context.Background(), 1, 4096, func(_ context.Context, _ []byte, _ int64) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	calls = 0
	err = c.Flush(context.Background(), 1, 4096, func(_ context.Context, _ []byte, _ int64) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, calls)
}

// scenario e: filling the LRU with clean pages then reading one more page
// evicts the oldest cleanly, with nothing landing in the orphan sink.
func TestEvictionOfCleanPageDropsIt(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	for idx := int64(0); idx < 4; idx++ {
		dst := make([]byte, 4096)
		_, err := c.Read(context.Background(), 1, dst, idx*4096, fillOnMiss(0xAA))
		require.NoError(t, err)
	}
	require.Equal(t, 4, c.lruLenForTest())

	dst := make([]byte, 4096)
	_, err := c.Read(context.Background(), 1, dst, 4*4096, fillOnMiss(0xAA))
	require.NoError(t, err)

	require.Equal(t, 4, c.lruLenForTest())
	_, ok := c.lru.Get(PageKey{ID: 1, Index: 0})
	require.False(t, ok)
	require.False(t, c.HasOrphans())
}

// scenario f: filling the LRU with dirty pages then writing one more page
// evicts the oldest into the orphan sink.
func TestEvictionOfDirtyPageOrphans(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	for idx := int64(0); idx < 4; idx++ {
		_, err := c.Write(context.Background(), 1, []byte{0x1}, idx*4096)
		require.NoError(t, err)
	}
	require.Equal(t, 4, c.lruLenForTest())

	_, err := c.Write(context.Background(), 1, []byte{0x2}, 4*4096)
	require.NoError(t, err)

	require.True(t, c.HasOrphans())
	orphans := c.TakeOrphans()
	require.Len(t, orphans, 1)
	require.Equal(t, PageKey{ID: 1, Index: 0}, orphans[0].Key())
	require.True(t, orphans[0].IsDirty())

	// Draining is destructive: a second drain finds nothing.
	require.False(t, c.HasOrphans())
	require.Empty(t, c.TakeOrphans())
}

// invariant 4: read-after-write within one task returns exactly what was
// written, without a miss for a fully-overwritten page.
func TestReadAfterWriteNoMiss(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	src := make([]byte, 4096)
	for i := range src {
		src[i] = byte(i)
	}
	_, err := c.Write(context.Background(), 1, src, 0)
	require.NoError(t, err)

	dst := make([]byte, 4096)
	n, err := c.Read(context.Background(), 1, dst, 0, noMiss(t))
	require.NoError(t, err)
	require.Equal(t, 4096, n)
	require.Equal(t, src, dst)
}

// invariant 5: a failing miss on one key does not affect a disjoint key,
// and removes its own in-flight entry so a retry is possible.
func TestFaultIsolation(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	boom := errors.New("boom")
	dst := make([]byte, 4096)
	_, err := c.Read(context.Background(), 1, dst, 0, func(_ context.Context, _ []byte, _ int64) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)

	// id=2 is a disjoint key and must be unaffected.
	dst2 := make([]byte, 4096)
	n, err := c.Read(context.Background(), 2, dst2, 0, fillOnMiss(0xBB))
	require.NoError(t, err)
	require.Equal(t, 4096, n)

	// Retrying the failed key must be possible: no stale in-flight entry.
	n, err = c.Read(context.Background(), 1, dst, 0, fillOnMiss(0xCC))
	require.NoError(t, err)
	require.Equal(t, 4096, n)
}

// invariant 2: capacity is respected after every completed operation, and
// SetMaxPages takes effect immediately (destructively).
func TestCapacityInvariantAndReconfiguration(t *testing.T) {
	c := New(4096, 2)
	defer c.Close()

	for idx := int64(0); idx < 5; idx++ {
		dst := make([]byte, 4096)
		_, err := c.Read(context.Background(), 1, dst, idx*4096, fillOnMiss(0xAA))
		require.NoError(t, err)
		require.LessOrEqual(t, c.lruLenForTest(), 2)
	}

	c.SetMaxPages(8)
	require.Equal(t, 8, c.MaxPages())
	require.Equal(t, 0, c.lruLenForTest())
}

// invariant 3: a failed flush leaves the dirty flag set.
func TestFailedFlushKeepsDirty(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	_, err := c.Write(context.Background(), 1, []byte{1, 2, 3}, 0)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = c.Flush(context.Background(), 1, 4096, func(_ context.Context, _ []byte, _ int64) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	pg, ok := c.lru.Get(PageKey{ID: 1, Index: 0})
	require.True(t, ok)
	require.True(t, pg.IsDirty())
}

func TestSetPageSizeClearsEverything(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	_, err := c.Write(context.Background(), 1, []byte{1, 2, 3}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, c.lruLenForTest())

	c.SetPageSize(8192)
	require.Equal(t, 8192, c.PageSize())
	require.Equal(t, 0, c.lruLenForTest())
	require.False(t, c.HasOrphans())
}

func TestInvalidateClearsLruOnlyAndDiscardsDirty(t *testing.T) {
	c := New(4096, 4)
	defer c.Close()

	_, err := c.Write(context.Background(), 1, []byte{1, 2, 3}, 0)
	require.NoError(t, err)

	c.Invalidate()
	require.Equal(t, 0, c.lruLenForTest())
	require.False(t, c.HasOrphans())
}

// lruLenForTest reaches into the actor for the current LRU length without
// racing the owning goroutine.
func (c *Cache) lruLenForTest() int {
	return actorCall(c, func() int { return c.lru.Len() })
}
