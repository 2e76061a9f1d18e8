package pagecache

import "context"

type writeStep struct {
	subscribe *inFlightEntry
	n         int
}

// Write copies bytes from src into the cache starting at offset. Writes are
// write-allocate but not read-allocate: a page not yet resident is created
// zero-filled rather than fetched, on the assumption that callers overwrite
// the region they write. Bytes of a new page that the write does not cover
// stay zero, and a later Flush sends them to the device as zeros. No
// on_miss call is ever made from this path.
func (c *Cache) Write(ctx context.Context, id FileID, src []byte, offset int64) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	p := c.PageSize()
	first := offset / int64(p)
	last := (offset + int64(len(src)) - 1) / int64(p)

	cursor := 0
	for idx := first; idx <= last; idx++ {
		key := PageKey{ID: id, Index: uint64(idx)}
		localOff := 0
		if idx == first {
			localOff = int(offset % int64(p))
		}
		n, err := c.writePage(key, src[cursor:], localOff)
		cursor += n
		if err != nil {
			return cursor, err
		}
	}
	return cursor, nil
}

func (c *Cache) writePage(key PageKey, src []byte, localOff int) (int, error) {
	for {
		step := actorCall(c, func() writeStep {
			if e, ok := c.inflight.Find(key); ok {
				return writeStep{subscribe: e}
			}
			pg, ok := c.lru.Get(key)
			if !ok {
				pg = newPage(key, c.pageSize)
				c.lru.InsertFront(pg)
				c.admit()
				// admit() only evicts from the tail; the page we just
				// pushed to the front survives it.
				pg, _ = c.lru.Get(key)
			}
			c.lru.Touch(key)
			n := pg.Write(src, localOff)
			pg.SetDirty(true)
			return writeStep{n: n}
		})

		if step.subscribe != nil {
			if err := step.subscribe.wait(); err != nil {
				return 0, err
			}
			continue
		}
		return step.n, nil
	}
}
