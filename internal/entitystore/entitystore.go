// Package entitystore mints and persists the path <-> FileId mapping the
// page cache treats as opaque, plus a small metadata (Stat) cache so
// repeated getattr calls do not require a transport round trip. Grounded on
// catfs/db/database_badger.go's use of github.com/dgraph-io/badger as an
// embedded KV store, simplified relative to the original project's
// tree/node.hpp (no in-memory adjacency tree; badger's key ordering does
// the job of listing children by prefix scan).
package entitystore

import (
	"encoding/binary"
	"strings"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"

	"github.com/mrizaln/adbfsm/internal/pagecache"
)

const (
	pathToIDPrefix = "p:"
	idToPathPrefix = "i:"
	seqKey         = "seq"
)

// Store persists the bidirectional path<->FileId mapping minted for every
// path the filesystem layer has touched.
type Store struct {
	db *badger.DB
	mu sync.Mutex
}

// Open opens (creating if absent) a badger database rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "entitystore: open badger")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the FileId already minted for path, if any.
func (s *Store) Lookup(path string) (pagecache.FileID, bool, error) {
	var id pagecache.FileID
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(pathToIDPrefix + path))
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
		id = pagecache.FileID(binary.BigEndian.Uint64(val))
		found = true
		return nil
	})
	return id, found, err
}

// MintID returns the FileId for path, minting and persisting a fresh one
// (via a monotonic counter) if this is the first time path is observed.
func (s *Store) MintID(path string) (pagecache.FileID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok, err := s.Lookup(path); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}

	var id pagecache.FileID
	err := s.db.Update(func(txn *badger.Txn) error {
		next, err := s.nextSeq(txn)
		if err != nil {
			return err
		}
		id = pagecache.FileID(next)

		idBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(idBuf, uint64(id))

		if err := txn.Set([]byte(pathToIDPrefix+path), idBuf); err != nil {
			return err
		}
		return txn.Set([]byte(idToPathPrefix+string(idBuf)), []byte(path))
	})
	return id, err
}

func (s *Store) nextSeq(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(seqKey))
	var current uint64
	if err == nil {
		val, err := item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		current = binary.BigEndian.Uint64(val)
	} else if err != badger.ErrKeyNotFound {
		return 0, err
	}

	next := current + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := txn.Set([]byte(seqKey), buf); err != nil {
		return 0, err
	}
	return next, nil
}

// PathOf reverse-looks-up the path for a previously minted id.
func (s *Store) PathOf(id pagecache.FileID) (string, bool, error) {
	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, uint64(id))

	var path string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(idToPathPrefix + string(idBuf)))
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
		path = string(val)
		found = true
		return nil
	})
	return path, found, err
}

// Forget removes path's mapping entirely (used on rm/rmdir).
func (s *Store) Forget(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := s.Lookup(path)
	if err != nil || !ok {
		return err
	}

	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, uint64(id))

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(pathToIDPrefix + path)); err != nil {
			return err
		}
		return txn.Delete([]byte(idToPathPrefix + string(idBuf)))
	})
}

// Rename moves a path's mapping (and every mapping rooted under it, for a
// directory) from oldPath to newPath, preserving each entry's FileId.
func (s *Store) Rename(oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	type move struct {
		id      pagecache.FileID
		oldPath string
		newPath string
	}
	var moves []move

	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.IteratorOptions{})
		defer iter.Close()

		fullPrefix := pathToIDPrefix + oldPath
		for iter.Seek([]byte(fullPrefix)); iter.Valid(); iter.Next() {
			item := iter.Item()
			key := string(item.Key())
			if !strings.HasPrefix(key, fullPrefix) {
				break
			}
			rest := strings.TrimPrefix(key, pathToIDPrefix)
			if rest != oldPath && !strings.HasPrefix(rest, oldPath+"/") {
				continue
			}

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			id := pagecache.FileID(binary.BigEndian.Uint64(val))
			moves = append(moves, move{
				id:      id,
				oldPath: rest,
				newPath: newPath + strings.TrimPrefix(rest, oldPath),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, m := range moves {
			idBuf := make([]byte, 8)
			binary.BigEndian.PutUint64(idBuf, uint64(m.id))

			if err := txn.Delete([]byte(pathToIDPrefix + m.oldPath)); err != nil {
				return err
			}
			if err := txn.Set([]byte(pathToIDPrefix+m.newPath), idBuf); err != nil {
				return err
			}
			if err := txn.Set([]byte(idToPathPrefix+string(idBuf)), []byte(m.newPath)); err != nil {
				return err
			}
		}
		return nil
	})
}
