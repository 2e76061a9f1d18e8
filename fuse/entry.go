package fuse

import (
	"context"
	"os"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	log "github.com/sirupsen/logrus"

	"github.com/mrizaln/adbfsm/internal/pagecache"
)

// Entry is a file node, addressed by its device-side path and the FileID
// minted for it by the entity store.
type Entry struct {
	fs   *Filesystem
	path string
	id   pagecache.FileID
}

func (e *Entry) Attr(ctx context.Context, a *fuse.Attr) error {
	st, err := e.fs.statPath(ctx, e.path)
	if err != nil {
		return errorize("entry-attr", err)
	}

	a.Mode = os.FileMode(0644)
	a.Size = uint64(st.Size)
	a.Mtime = st.ModTime
	return nil
}

func (e *Entry) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	log.Debugf("fuse: open %v", e.path)
	return &Handle{fs: e.fs, entry: e}, nil
}

func (e *Entry) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid&fuse.SetattrSize == 0 {
		return nil
	}

	if e.fs.readOnly {
		return fuse.EIO
	}

	log.Debugf("fuse: truncate %v to %d", e.path, req.Size)
	if err := e.fs.backend.Truncate(ctx, e.path, int64(req.Size)); err != nil {
		return errorize("entry-setattr-truncate", err)
	}

	cached, _, err := e.fs.store.GetStat(e.path)
	if err != nil {
		return errorize("entry-setattr-stat", err)
	}
	cached.Size = int64(req.Size)
	return errorize("entry-setattr-stat", e.fs.store.PutStat(e.path, cached, timeNow()))
}

func (e *Entry) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return errorize("entry-fsync", e.fs.flushEntry(ctx, e))
}

func timeNow() time.Time { return time.Now() }
