package pagecache

import "context"

// readStep is the outcome of one actor turn while resolving a single page
// for a read: either the page was already resident (or just installed) and
// the copy into dst happened inline, or the caller must subscribe to an
// in-flight fetch, or the caller must itself perform the fetch.
type readStep struct {
	subscribe *inFlightEntry
	produce   *inFlightEntry
	n         int
}

// Read copies bytes starting at offset into dst, fetching any missing page
// via onMiss. Pages are resolved in ascending index order; a failure on one
// page aborts the whole call without rolling back bytes already copied into
// dst (the caller is expected to treat the returned error as the only
// signal, not the partial byte count).
func (c *Cache) Read(ctx context.Context, id FileID, dst []byte, offset int64, onMiss OnMiss) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	p := c.PageSize()
	first := offset / int64(p)
	last := (offset + int64(len(dst)) - 1) / int64(p)

	cursor := 0
	for idx := first; idx <= last; idx++ {
		key := PageKey{ID: id, Index: uint64(idx)}
		localOff := 0
		if idx == first {
			localOff = int(offset % int64(p))
		}
		n, err := c.readPage(ctx, key, dst[cursor:], localOff, onMiss)
		cursor += n
		if err != nil {
			return cursor, err
		}
	}
	return cursor, nil
}

func (c *Cache) readPage(ctx context.Context, key PageKey, dst []byte, localOff int, onMiss OnMiss) (int, error) {
	for {
		step := actorCall(c, func() readStep {
			if e, ok := c.inflight.Find(key); ok {
				return readStep{subscribe: e}
			}
			if pg, ok := c.lru.Get(key); ok {
				c.lru.Touch(key)
				return readStep{n: pg.Read(dst, localOff)}
			}
			e, err := c.inflight.Begin(key)
			if err != nil {
				// Another turn raced us between Find and Begin; impossible
				// under the single-actor-turn model, but fall back to
				// subscribing rather than panicking.
				e, _ = c.inflight.Find(key)
				return readStep{subscribe: e}
			}
			return readStep{produce: e}
		})

		switch {
		case step.subscribe != nil:
			if err := step.subscribe.wait(); err != nil {
				return 0, err
			}
			continue // re-consult the LRU: the page may now be resident.

		case step.produce != nil:
			n, stale, err := c.fetchAndInstall(ctx, key, step.produce, onMiss, dst, localOff)
			if err != nil {
				return 0, err
			}
			if stale {
				continue // reconfigured mid-fetch; retry under new state
			}
			return n, nil

		default:
			return step.n, nil
		}
	}
}

// fetchAndInstall performs the (potentially slow) onMiss call on the
// calling goroutine, then hands the result back to the actor to install.
func (c *Cache) fetchAndInstall(ctx context.Context, key PageKey, entry *inFlightEntry, onMiss OnMiss, dst []byte, localOff int) (n int, stale bool, err error) {
	pageSize := c.PageSize()
	buf := make([]byte, pageSize)
	read, err := onMiss(ctx, buf, int64(key.Index)*int64(pageSize))
	if err != nil {
		actorCall(c, func() struct{} {
			c.inflight.Resolve(key, err)
			return struct{}{}
		})
		return 0, false, err
	}

	type installResult struct {
		n     int
		stale bool
	}
	res := actorCall(c, func() installResult {
		if !c.inflight.Owns(key, entry) {
			// A reconfiguration cleared the in-flight table while our
			// fetch was outstanding. Our data belongs to a page size that
			// no longer applies; discard it silently. The caller's retry
			// loop will re-miss (or re-hit) under the new configuration.
			return installResult{stale: true}
		}
		pg := newPageFromFetch(key, buf, read)
		c.lru.InsertFront(pg)
		c.inflight.Resolve(key, nil)
		c.admit()
		c.lru.Touch(key)
		return installResult{n: pg.Read(dst, localOff)}
	})
	return res.n, res.stale, nil
}
