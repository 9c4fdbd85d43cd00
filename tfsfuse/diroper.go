package tfsfuse

import (
	"context"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// dentries lists the root. Entries unlinked between the listing and their
// attribute lookup are skipped.
func (tf *TfsFuse) dentries() ([]fuseutil.Dirent, error) {
	entries, err := tf.fs.ReadDir()
	if err != nil {
		return nil, err
	}
	dentries := make([]fuseutil.Dirent, 0, len(entries))
	for _, e := range entries {
		attr, err := tf.fs.GetAttr(e.Inumber)
		if err != nil {
			continue
		}
		dentries = append(dentries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(dentries) + 1),
			Inode:  fuseInode(e.Inumber),
			Name:   e.Name,
			Type:   direntType(attr.Type),
		})
	}
	return dentries, nil
}

// FindNextDirHandle find unused dir handle
func (tf *TfsFuse) FindNextDirHandle() fuseops.HandleID {
	handle := tf.nextHandle
	for _, ok := tf.dirHandles[handle]; ok; _, ok = tf.dirHandles[handle] {
		handle++
	}
	tf.nextHandle = handle + 1
	return handle
}

// OpenDir opens the root for reading. It is the only directory.
func (tf *TfsFuse) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp) error {
	if op.Inode != fuseops.RootInodeID {
		return fuse.ENOTDIR
	}
	dentries, err := tf.dentries()
	if err != nil {
		return tf.errno("OpenDir", err)
	}
	tf.lockHandle.Lock()
	defer tf.lockHandle.Unlock()
	op.Handle = tf.FindNextDirHandle()
	tf.dirHandles[op.Handle] = NewDirHandle(op.Inode, dentries)
	return nil
}

// ReadDir reads a directory.
func (tf *TfsFuse) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp) error {
	tf.lockHandle.Lock()
	dir, ok := tf.dirHandles[op.Handle]
	tf.lockHandle.Unlock()
	if !ok {
		return fuse.EINVAL
	}
	if op.Inode != dir.GetInodeID() {
		tf.log.Errorf("ReadDir(%d): wrong inode %d", op.Inode, dir.GetInodeID())
		return fuse.EINVAL
	}
	if op.Offset == 0 && dir.CacheSize() > 0 {
		dentries, err := tf.dentries()
		if err != nil {
			return tf.errno("ReadDir", err)
		}
		dir.Rewind(dentries)
	}
	for _, dirent := range dir.Entries(op.Offset) {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dirent)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

// ReleaseDirHandle releases a directory handle.
func (tf *TfsFuse) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp) error {
	tf.lockHandle.Lock()
	defer tf.lockHandle.Unlock()
	delete(tf.dirHandles, op.Handle)
	return nil
}
