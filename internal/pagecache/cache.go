// Package pagecache implements the block cache that sits between the FUSE
// operations layer and the ADB transport: it slices arbitrary-offset reads
// and writes into fixed power-of-two pages, coalesces concurrent misses
// into a single transport call, keeps an LRU-bounded resident set, defers
// writes until flushed, and never silently drops a dirty page on eviction.
//
// Concurrency model. The reference design this package implements is
// specified as single-threaded cooperative: one executor, no mutexes, only
// structural non-reentrance. Go has no such executor, so this package
// realizes the same contract with an actor: a single goroutine (run) owns
// every mutable structure (LruIndex, InFlightMap, OrphanSink, the current
// page size and capacity) and processes requests submitted to it as
// closures over a channel. Every exported method is a thin client that
// hands the actor a closure and blocks on a private reply channel — never
// the other way around. The only work that can take unbounded time (the
// caller-supplied onMiss/onFlush, which talk to the device) runs on the
// calling goroutine, outside any actor turn, so a slow device call never
// stalls unrelated cache operations.
package pagecache

import "context"

// OnMiss fetches up to len(buf) bytes for the page at the given byte offset
// into buf, returning how many bytes were actually read (a short read is
// valid at end-of-file).
type OnMiss func(ctx context.Context, buf []byte, offset int64) (int, error)

// OnFlush writes data to the device at the given byte offset.
type OnFlush func(ctx context.Context, data []byte, offset int64) error

// Cache is the exposed capability: read/write/flush, orphan drain,
// reconfiguration and inspection.
type Cache struct {
	reqs chan func()
	done chan struct{}

	pageSize int
	maxPages int

	lru      *LruIndex
	inflight *InFlightMap
	orphans  *OrphanSink
}

// New constructs a Cache with the given page size (must be a power of two,
// the caller is responsible for that precondition) and page budget, and
// starts its actor goroutine.
func New(pageSize, maxPages int) *Cache {
	c := &Cache{
		reqs:     make(chan func()),
		done:     make(chan struct{}),
		pageSize: pageSize,
		maxPages: maxPages,
		lru:      newLruIndex(),
		inflight: newInFlightMap(),
		orphans:  newOrphanSink(),
	}
	go c.run()
	return c
}

func (c *Cache) run() {
	for {
		select {
		case req := <-c.reqs:
			req()
		case <-c.done:
			return
		}
	}
}

// Close stops the actor goroutine. Not part of the reference contract, but
// every long-lived goroutine in this codebase gets a way to shut down.
func (c *Cache) Close() {
	close(c.done)
}

// actorCall submits fn to the actor and blocks until it runs, returning its
// result. fn must never block: it is the single shared turn for every
// concurrent caller.
func actorCall[T any](c *Cache, fn func() T) T {
	reply := make(chan T, 1)
	c.reqs <- func() { reply <- fn() }
	return <-reply
}

func (c *Cache) PageSize() int { return actorCall(c, func() int { return c.pageSize }) }

func (c *Cache) MaxPages() int { return actorCall(c, func() int { return c.maxPages }) }

// admit runs the eviction policy: while over budget, pop the LRU tail; a
// dirty victim moves to the orphan sink, a clean one is simply dropped.
// Must only be called from the actor goroutine.
func (c *Cache) admit() {
	for c.lru.Len() > c.maxPages {
		p, ok := c.lru.PopBack()
		if !ok {
			return
		}
		if p.IsDirty() {
			c.orphans.Add(p)
		}
	}
}

// clearAll resolves every outstanding in-flight fetch with err and resets
// the LRU, in-flight table and orphan sink. Used by SetPageSize and
// SetMaxPages, whose destructive-reconfiguration contract requires that no
// old-sized page or stale fetch survives. Must only run on the actor.
func (c *Cache) clearAll(err error) {
	c.inflight.clear(err)
	c.lru = newLruIndex()
	c.orphans = newOrphanSink()
}

// SetPageSize replaces the page size and clears LRU, in-flight and orphan
// state. Callers must flush before calling — dirty data in residency is
// discarded.
func (c *Cache) SetPageSize(p int) {
	actorCall(c, func() struct{} {
		c.pageSize = p
		c.clearAll(errReconfigured)
		return struct{}{}
	})
}

// SetMaxPages replaces the page budget with the same clearing semantics as
// SetPageSize.
func (c *Cache) SetMaxPages(m int) {
	actorCall(c, func() struct{} {
		c.maxPages = m
		c.clearAll(errReconfigured)
		return struct{}{}
	})
}

// Invalidate clears the LRU only; dirty data in residency is discarded. The
// in-flight table and orphan sink are left alone.
func (c *Cache) Invalidate() {
	actorCall(c, func() struct{} {
		c.lru = newLruIndex()
		return struct{}{}
	})
}

func (c *Cache) HasOrphans() bool {
	return actorCall(c, func() bool { return c.orphans.HasOrphans() })
}

// TakeOrphans transfers ownership of the current orphan set out of the
// cache. The cache retries nothing; the host looks up each page's path via
// its own id-to-path mapping and flushes it, optionally writing the bytes
// back through Write if a retry is warranted.
func (c *Cache) TakeOrphans() []*Page {
	return actorCall(c, func() []*Page { return c.orphans.Take() })
}
