package fuse

import (
	"syscall"

	"bazil.org/fuse"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mrizaln/adbfsm/internal/pagecache"
)

// errorize maps a pagecache/Backend error onto a fuse.Errno the kernel can
// present to a caller. Anything not carrying a recognized Kind is logged
// and surfaced as EIO.
func errorize(name string, err error) error {
	if err == nil {
		return nil
	}

	var pcErr *pagecache.Error
	if errors.As(err, &pcErr) {
		switch pcErr.Kind {
		case pagecache.KindNoSuchFileOrDirectory:
			return fuse.ENOENT
		case pagecache.KindPermissionDenied:
			return fuse.Errno(syscall.EACCES)
		case pagecache.KindFileExists:
			return fuse.EEXIST
		case pagecache.KindNotADirectory:
			return fuse.Errno(syscall.ENOTDIR)
		case pagecache.KindIsADirectory:
			return fuse.Errno(syscall.EISDIR)
		case pagecache.KindInvalidArgument:
			return fuse.Errno(syscall.EINVAL)
		case pagecache.KindDirectoryNotEmpty:
			return fuse.Errno(syscall.ENOTEMPTY)
		case pagecache.KindDisconnected:
			return fuse.Errno(syscall.EHOSTDOWN)
		}
	}

	log.WithFields(log.Fields{"op": name, "error": err}).Warning("fuse: operation failed")
	return fuse.EIO
}

// logPanic recovers a panic inside a FUSE handler, logging it rather than
// crashing the whole mount over one misbehaving request.
func logPanic(name string) {
	if r := recover(); r != nil {
		log.Errorf("fuse: %s: recovered panic: %v", name, r)
	}
}
