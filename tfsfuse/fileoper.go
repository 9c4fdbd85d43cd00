package tfsfuse

import (
	"context"
	"strings"
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/rarydzu/tfs/tfs"
)

// CreateFile creates a file in the root and opens it.
func (tf *TfsFuse) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp) error {
	if err := checkParent(op.Parent); err != nil {
		return err
	}
	h, err := tf.fs.Open(enginePath(op.Name), tfs.OCreate)
	if err != nil {
		return tf.errno("CreateFile", err)
	}
	inum, err := tf.fs.Inumber(h)
	if err == nil {
		err = tf.fillEntry(&op.Entry, inum)
	}
	if err != nil {
		tf.fs.Close(h)
		return tf.errno("CreateFile", err)
	}
	op.Handle = fuseops.HandleID(h)
	return nil
}

// OpenFile opens a file by inode.
func (tf *TfsFuse) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp) error {
	h, err := tf.fs.OpenInode(engineInode(op.Inode), 0)
	if err != nil {
		return tf.errno("OpenFile", err)
	}
	op.Handle = fuseops.HandleID(h)
	return nil
}

// ReadFile reads at the requested offset of an open handle.
func (tf *TfsFuse) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp) error {
	n, err := tf.fs.ReadAt(int(op.Handle), op.Dst, int(op.Offset))
	op.BytesRead = n
	return tf.errno("ReadFile", err)
}

// WriteFile writes at the requested offset. Data past the single block a
// file can hold fails the call with EFBIG.
func (tf *TfsFuse) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp) error {
	n, err := tf.fs.WriteAt(int(op.Handle), op.Data, int(op.Offset))
	if err != nil {
		return tf.errno("WriteFile", err)
	}
	if n < len(op.Data) {
		tf.log.Debugf("WriteFile(%d): %d of %d bytes at %d fit", op.Inode, n, len(op.Data), op.Offset)
		return syscall.EFBIG
	}
	return nil
}

// FlushFile has nothing to flush; content lives in memory.
func (tf *TfsFuse) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp) error {
	return nil
}

func (tf *TfsFuse) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp) error {
	return nil
}

// ReleaseFileHandle closes the engine handle.
func (tf *TfsFuse) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp) error {
	return tf.errno("ReleaseFileHandle", tf.fs.Close(int(op.Handle)))
}

// CreateLink adds a hard link to a regular file.
func (tf *TfsFuse) CreateLink(
	ctx context.Context,
	op *fuseops.CreateLinkOp) error {
	if err := checkParent(op.Parent); err != nil {
		return err
	}
	target := engineInode(op.Target)
	if err := tf.fs.LinkInode(target, enginePath(op.Name)); err != nil {
		return tf.errno("CreateLink", err)
	}
	return tf.errno("CreateLink", tf.fillEntry(&op.Entry, target))
}

// CreateSymlink stores a target naming another root entry. Targets are kept
// relative in the kernel's view, so the mountpoint can live anywhere.
func (tf *TfsFuse) CreateSymlink(
	ctx context.Context,
	op *fuseops.CreateSymlinkOp) error {
	if err := checkParent(op.Parent); err != nil {
		return err
	}
	name := enginePath(op.Name)
	target := enginePath(strings.TrimPrefix(op.Target, "./"))
	if err := tf.fs.SymLink(target, name); err != nil {
		return tf.errno("CreateSymlink", err)
	}
	inum, err := tf.fs.Lookup(name)
	if err != nil {
		return tf.errno("CreateSymlink", err)
	}
	return tf.errno("CreateSymlink", tf.fillEntry(&op.Entry, inum))
}

// ReadSymlink returns the stored target relative to the root.
func (tf *TfsFuse) ReadSymlink(
	ctx context.Context,
	op *fuseops.ReadSymlinkOp) error {
	target, err := tf.fs.ReadLinkInode(engineInode(op.Inode))
	if err != nil {
		return tf.errno("ReadSymlink", err)
	}
	op.Target = strings.TrimPrefix(target, string(tfs.Separator))
	return nil
}

// Unlink removes a root entry.
func (tf *TfsFuse) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp) error {
	if err := checkParent(op.Parent); err != nil {
		return err
	}
	return tf.errno("Unlink", tf.fs.Unlink(enginePath(op.Name)))
}
