package fuse

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	log "github.com/sirupsen/logrus"

	"github.com/mrizaln/adbfsm/internal/entitystore"
)

// Handle is an open Entry. Read and Write run through the Cache; Flush
// drains the entry's dirty pages to the Backend. Release only logs: it
// leaves the entry's pages, dirty or not, in the Cache.
type Handle struct {
	fs    *Filesystem
	entry *Entry
}

func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	defer logPanic("handle: read")

	log.WithFields(log.Fields{
		"path":   h.entry.path,
		"offset": req.Offset,
		"size":   req.Size,
	}).Debug("fuse: handle: read")

	dst := resp.Data[:req.Size]
	onMiss := func(ctx context.Context, buf []byte, offset int64) (int, error) {
		return h.fs.backend.Read(ctx, h.entry.path, buf, offset)
	}

	n, err := h.fs.cache.Read(ctx, h.entry.id, dst, req.Offset, onMiss)
	if err != nil {
		return errorize("handle-read", err)
	}

	resp.Data = dst[:n]
	return nil
}

func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	defer logPanic("handle: write")

	if h.fs.readOnly {
		return fuse.EIO
	}

	log.WithFields(log.Fields{
		"path":   h.entry.path,
		"offset": req.Offset,
		"size":   len(req.Data),
	}).Debug("fuse: handle: write")

	n, err := h.fs.cache.Write(ctx, h.entry.id, req.Data, req.Offset)
	if err != nil {
		return errorize("handle-write", err)
	}
	resp.Size = n

	return errorize("handle-write-grow", h.growStat(int64(req.Offset)+int64(n)))
}

// growStat bumps the cached size forward when a write extends the file
// past what the Backend last reported; the Backend only learns about it at
// the next Flush.
func (h *Handle) growStat(newSize int64) error {
	cached, ok, err := h.fs.store.GetStat(h.entry.path)
	if err != nil {
		return err
	}
	if ok && cached.Size >= newSize {
		return nil
	}
	if !ok {
		cached = entitystore.CachedStat{}
	}
	cached.Size = newSize
	return h.fs.store.PutStat(h.entry.path, cached, timeNow())
}

func (h *Handle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return errorize("handle-flush", h.fs.flushEntry(ctx, h.entry))
}

func (h *Handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	log.Debugf("fuse: release %v", h.entry.path)
	return nil
}

var (
	_ fs.HandleReader   = (*Handle)(nil)
	_ fs.HandleWriter   = (*Handle)(nil)
	_ fs.HandleFlusher  = (*Handle)(nil)
	_ fs.HandleReleaser = (*Handle)(nil)
)
