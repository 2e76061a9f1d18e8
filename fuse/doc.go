// Package fuse implements the FUSE layer that exposes a device tree reached
// over internal/transport as a mountable directory. There are three kinds of
// struct in the bazil.org/fuse API this package fills in:
//
//   - fuse.FS    : the filesystem, used to find the root node (Filesystem)
//   - fuse.Node  : a file or a directory (Entry, Dir)
//   - fuse.Handle: an open file (Handle)
//
// Every Node and Handle method gets a ctx used to cancel the operation, a
// request with the detailed query, and (for some calls) a response to fill
// in. Read and Write run through internal/pagecache's Cache rather than
// talking to the Backend directly; every other operation (stat, mkdir, rm,
// rename, readdir) goes straight to the Backend, with results cached for a
// short window in the entity store's stat cache.
package fuse
