package fuse

import (
	"context"
	"time"

	"bazil.org/fuse/fs"

	"github.com/mrizaln/adbfsm/internal/entitystore"
	"github.com/mrizaln/adbfsm/internal/pagecache"
	"github.com/mrizaln/adbfsm/internal/transport"
)

// statTTL bounds how long a cached stat is trusted before this layer
// re-asks the Backend. FUSE stats a path before nearly every operation, so
// without this window a plain `ls -l` round-trips to the device once per
// entry.
const statTTL = 2 * time.Second

// Backend is the capability this layer drives for everything other than
// page-sized reads/writes: path metadata and mutation. *transport.Transport
// satisfies it; tests supply a fake.
type Backend interface {
	Stat(ctx context.Context, path string) (transport.Stat, error)
	ReadDir(ctx context.Context, path string) ([]string, error)
	Mkdir(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	Truncate(ctx context.Context, path string, size int64) error
	Touch(ctx context.Context, path string) error
	Read(ctx context.Context, path string, buf []byte, offset int64) (int, error)
	Write(ctx context.Context, path string, data []byte, offset int64) (int, error)
}

// Filesystem is the bazil.org/fuse/fs.FS implementation rooted at a device
// path, backed by a Backend for metadata/mutation and a Cache for file data.
type Filesystem struct {
	backend  Backend
	cache    *pagecache.Cache
	store    *entitystore.Store
	root     string
	readOnly bool
}

// NewFilesystem builds a Filesystem. root is the device-side path exposed as
// the mount's "/".
func NewFilesystem(backend Backend, cache *pagecache.Cache, store *entitystore.Store, root string, readOnly bool) *Filesystem {
	return &Filesystem{backend: backend, cache: cache, store: store, root: root, readOnly: readOnly}
}

func (f *Filesystem) Root() (fs.Node, error) {
	return &Dir{fs: f, path: f.root}, nil
}

// statPath returns path's metadata, preferring a still-fresh cache entry
// over a Backend round trip.
func (f *Filesystem) statPath(ctx context.Context, path string) (entitystore.CachedStat, error) {
	if cached, ok, err := f.store.GetStat(path); err == nil && ok {
		if time.Since(cached.At) < statTTL {
			return cached, nil
		}
	}

	st, err := f.backend.Stat(ctx, path)
	if err != nil {
		return entitystore.CachedStat{}, err
	}

	cached := entitystore.CachedStat{
		Size:    st.Size,
		Mode:    st.Mode,
		ModTime: st.ModTime,
		IsDir:   st.IsDir,
		IsLink:  st.IsLink,
	}
	if err := f.store.PutStat(path, cached, time.Now()); err != nil {
		return entitystore.CachedStat{}, err
	}
	return cached, nil
}

// flushEntry drains every dirty page minted for e's path back through the
// Backend, using the size last recorded in the stat cache (writes only ever
// touch cache pages; the Backend learns about them here).
func (f *Filesystem) flushEntry(ctx context.Context, e *Entry) error {
	size := int64(0)
	if cached, ok, err := f.store.GetStat(e.path); err != nil {
		return err
	} else if ok {
		size = cached.Size
	}

	onFlush := func(ctx context.Context, data []byte, offset int64) error {
		_, err := f.backend.Write(ctx, e.path, data, offset)
		return err
	}
	if err := f.cache.Flush(ctx, e.id, size, onFlush); err != nil {
		return err
	}

	return f.store.InvalidateStat(e.path)
}
