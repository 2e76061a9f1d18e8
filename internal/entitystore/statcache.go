package entitystore

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger"
)

const statCachePrefix = "s:"

// CachedStat is a metadata snapshot the host takes after a stat/statdir
// round trip, so a burst of getattr calls (very common under FUSE, which
// stats a path before nearly every operation) does not itself round-trip
// to the device. This is a metadata cache, distinct from the page cache's
// data cache, and carries no invariant of its own beyond "may be stale".
type CachedStat struct {
	Size    int64
	Mode    uint32
	ModTime time.Time
	IsDir   bool
	IsLink  bool
	At      time.Time
}

// PutStat records a metadata snapshot for path, stamped with the current
// time so callers can decide their own staleness window.
func (s *Store) PutStat(path string, st CachedStat, now time.Time) error {
	st.At = now
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(statCachePrefix+path), data)
	})
}

// GetStat returns the last recorded snapshot for path, if any.
func (s *Store) GetStat(path string) (CachedStat, bool, error) {
	var st CachedStat
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(statCachePrefix + path))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(val, &st); err != nil {
			return err
		}
		found = true
		return nil
	})
	return st, found, err
}

// InvalidateStat drops a cached metadata snapshot, e.g. after a write or
// truncate changes the file's size.
func (s *Store) InvalidateStat(path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(statCachePrefix + path))
	})
}
