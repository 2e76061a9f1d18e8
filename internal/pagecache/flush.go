package pagecache

import "context"

type flushStep struct {
	subscribe *inFlightEntry
	skip      bool
	scratch   []byte
	offset    int64
}

// Flush writes every resident dirty page covering [0, sizeBytes) back
// through onFlush, in ascending index order, clearing the dirty flag on
// success. A page is read into a scratch buffer before onFlush is invoked,
// so concurrent writes to the live page during the call cannot corrupt the
// bytes in flight; if a later write re-dirties the page after its contents
// were already copied out, the next Flush call picks it up.
//
// On the first error, the dirty flag of the offending page is left set and
// the call aborts; the caller decides whether to retry.
func (c *Cache) Flush(ctx context.Context, id FileID, sizeBytes int64, onFlush OnFlush) error {
	p := int64(c.PageSize())
	n := (sizeBytes + p - 1) / p
	for idx := int64(0); idx < n; idx++ {
		key := PageKey{ID: id, Index: uint64(idx)}
		if err := c.flushPage(ctx, key, onFlush); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) flushPage(ctx context.Context, key PageKey, onFlush OnFlush) error {
	for {
		step := actorCall(c, func() flushStep {
			if e, ok := c.inflight.Find(key); ok {
				return flushStep{subscribe: e}
			}
			pg, ok := c.lru.Get(key)
			if !ok || !pg.IsDirty() {
				return flushStep{skip: true}
			}
			scratch := make([]byte, pg.Length())
			pg.Read(scratch, 0)
			return flushStep{scratch: scratch, offset: int64(key.Index) * int64(pg.Size())}
		})

		if step.subscribe != nil {
			if err := step.subscribe.wait(); err != nil {
				return err
			}
			continue
		}
		if step.skip {
			return nil
		}

		err := onFlush(ctx, step.scratch, step.offset)
		actorCall(c, func() struct{} {
			if err == nil {
				if pg, ok := c.lru.Get(key); ok {
					pg.SetDirty(false)
				}
			}
			return struct{}{}
		})
		return err
	}
}
