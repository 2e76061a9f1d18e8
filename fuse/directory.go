package fuse

import (
	"context"
	"os"
	"path"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	log "github.com/sirupsen/logrus"
)

// Dir is a directory node, addressed by its device-side path.
type Dir struct {
	fs   *Filesystem
	path string
}

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	st, err := d.fs.statPath(ctx, d.path)
	if err != nil {
		return errorize("dir-attr", err)
	}

	a.Mode = os.ModeDir | 0755
	a.Size = uint64(st.Size)
	a.Mtime = st.ModTime
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	childPath := path.Join(d.path, name)

	st, err := d.fs.statPath(ctx, childPath)
	if err != nil {
		return nil, errorize("dir-lookup", err)
	}

	if st.IsDir {
		return &Dir{fs: d.fs, path: childPath}, nil
	}

	id, err := d.fs.store.MintID(childPath)
	if err != nil {
		return nil, errorize("dir-lookup-mint", err)
	}
	return &Entry{fs: d.fs, path: childPath, id: id}, nil
}

func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	if d.fs.readOnly {
		return nil, fuse.Errno(syscall.EROFS)
	}

	childPath := path.Join(d.path, req.Name)
	if err := d.fs.backend.Mkdir(ctx, childPath); err != nil {
		log.WithFields(log.Fields{"path": childPath, "error": err}).Warning("fuse: mkdir failed")
		return nil, errorize("dir-mkdir", err)
	}
	return &Dir{fs: d.fs, path: childPath}, nil
}

func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	if d.fs.readOnly {
		return nil, nil, fuse.Errno(syscall.EROFS)
	}

	childPath := path.Join(d.path, req.Name)
	log.Debugf("fuse: create %v", childPath)

	if err := d.fs.backend.Touch(ctx, childPath); err != nil {
		log.WithFields(log.Fields{"path": childPath, "error": err}).Warning("fuse: create failed")
		return nil, nil, errorize("dir-create", err)
	}

	id, err := d.fs.store.MintID(childPath)
	if err != nil {
		return nil, nil, errorize("dir-create-mint", err)
	}

	entry := &Entry{fs: d.fs, path: childPath, id: id}
	return entry, &Handle{fs: d.fs, entry: entry}, nil
}

func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if d.fs.readOnly {
		return fuse.Errno(syscall.EROFS)
	}

	childPath := path.Join(d.path, req.Name)

	var err error
	if req.Dir {
		err = d.fs.backend.Rmdir(ctx, childPath)
	} else {
		err = d.fs.backend.Remove(ctx, childPath)
	}
	if err != nil {
		return errorize("dir-remove", err)
	}

	return errorize("dir-remove-forget", d.fs.store.Forget(childPath))
}

func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	if d.fs.readOnly {
		return fuse.Errno(syscall.EROFS)
	}

	destDir, ok := newDir.(*Dir)
	if !ok {
		return fuse.EIO
	}

	oldPath := path.Join(d.path, req.OldName)
	newPath := path.Join(destDir.path, req.NewName)

	if err := d.fs.backend.Rename(ctx, oldPath, newPath); err != nil {
		return errorize("dir-rename", err)
	}

	return errorize("dir-rename-reindex", d.fs.store.Rename(oldPath, newPath))
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	names, err := d.fs.backend.ReadDir(ctx, d.path)
	if err != nil {
		return nil, errorize("dir-readdir", err)
	}

	ents := make([]fuse.Dirent, 0, len(names))
	for _, name := range names {
		childPath := path.Join(d.path, name)

		typ := fuse.DT_File
		if st, err := d.fs.statPath(ctx, childPath); err == nil && st.IsDir {
			typ = fuse.DT_Dir
		}

		ents = append(ents, fuse.Dirent{Name: name, Type: typ})
	}
	return ents, nil
}
