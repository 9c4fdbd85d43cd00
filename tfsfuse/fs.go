// Package tfsfuse exposes a tfs engine as a flat FUSE filesystem.
package tfsfuse

import (
	"context"
	"errors"
	"os"
	"os/user"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/rarydzu/tfs/tfs"
	"github.com/rarydzu/tfs/tfs/inode"
	"go.uber.org/zap"
)

// AttributesTTL is how long the kernel may cache entries and attributes.
const AttributesTTL = time.Second

type TfsFuse struct {
	fuseutil.NotImplementedFileSystem
	fs         *tfs.Tfs
	log        *zap.SugaredLogger
	uid        uint32
	gid        uint32
	dirHandles map[fuseops.HandleID]*DirHandle
	nextHandle fuseops.HandleID
	lockHandle sync.Mutex
}

func New(fs *tfs.Tfs, log *zap.SugaredLogger) (*TfsFuse, error) {
	user, err := user.Current()
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(user.Uid, 10, 32)
	if err != nil {
		return nil, err
	}
	gid, err := strconv.ParseUint(user.Gid, 10, 32)
	if err != nil {
		return nil, err
	}
	return &TfsFuse{
		fs:         fs,
		log:        log,
		uid:        uint32(uid),
		gid:        uint32(gid),
		dirHandles: make(map[fuseops.HandleID]*DirHandle),
	}, nil
}

// NewServer wraps the engine in a fuse.Server ready for fuse.Mount.
func NewServer(fs *tfs.Tfs, log *zap.SugaredLogger) (fuse.Server, error) {
	tf, err := New(fs, log)
	if err != nil {
		return nil, err
	}
	return fuseutil.NewFileSystemServer(tf), nil
}

// FUSE inode n+1 is engine inode n, so the root maps to fuseops.RootInodeID.
func engineInode(id fuseops.InodeID) int {
	return int(id) - 1
}

func fuseInode(inum int) fuseops.InodeID {
	return fuseops.InodeID(inum + 1)
}

func enginePath(name string) string {
	return string(tfs.Separator) + name
}

// errno maps engine errors onto error numbers for the kernel.
func (tf *TfsFuse) errno(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tfs.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, tfs.ErrAlreadyExists):
		return fuse.EEXIST
	case errors.Is(err, tfs.ErrInvalidPath), errors.Is(err, tfs.ErrInvalidOffset):
		return fuse.EINVAL
	case errors.Is(err, tfs.ErrWrongType):
		return syscall.EPERM
	case errors.Is(err, tfs.ErrTableFull), errors.Is(err, tfs.ErrPoolExhausted):
		return syscall.ENOSPC
	case errors.Is(err, tfs.ErrBadHandle):
		return syscall.EBADF
	case errors.Is(err, tfs.ErrStaleHandle):
		return syscall.ESTALE
	case errors.Is(err, tfs.ErrTooManyLinks):
		return syscall.ELOOP
	case errors.Is(err, tfs.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	}
	tf.log.Errorf("%s: %v", op, err)
	return fuse.EIO
}

func (tf *TfsFuse) attributes(ind inode.Inode) fuseops.InodeAttributes {
	var mode os.FileMode
	switch ind.Type {
	case inode.Directory:
		mode = os.ModeDir | 0755
	case inode.Symlink:
		mode = os.ModeSymlink | 0777
	default:
		mode = 0644
	}
	return fuseops.InodeAttributes{
		Size:   uint64(ind.Size),
		Nlink:  uint32(ind.LinkCount),
		Mode:   mode,
		Atime:  ind.Mtime,
		Mtime:  ind.Mtime,
		Ctime:  ind.Ctime,
		Crtime: ind.Ctime,
		Uid:    tf.uid,
		Gid:    tf.gid,
	}
}

func direntType(t inode.Type) fuseutil.DirentType {
	switch t {
	case inode.Directory:
		return fuseutil.DT_Directory
	case inode.Symlink:
		return fuseutil.DT_Link
	}
	return fuseutil.DT_File
}

// fillEntry reports inum as the child of a lookup or create.
func (tf *TfsFuse) fillEntry(entry *fuseops.ChildInodeEntry, inum int) error {
	attr, err := tf.fs.GetAttr(inum)
	if err != nil {
		return err
	}
	expiration := tf.fs.Clock.Now().Add(AttributesTTL)
	entry.Child = fuseInode(inum)
	entry.Generation = fuseops.GenerationNumber(attr.Generation)
	entry.Attributes = tf.attributes(attr)
	entry.AttributesExpiration = expiration
	entry.EntryExpiration = expiration
	return nil
}

func checkParent(parent fuseops.InodeID) error {
	if parent != fuseops.RootInodeID {
		return fuse.ENOTDIR
	}
	return nil
}

// StatFS reports the block pool and inode table usage.
func (tf *TfsFuse) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp) error {
	st, err := tf.fs.Stat()
	if err != nil {
		return tf.errno("StatFS", err)
	}
	op.BlockSize = uint32(st.BlockSize)
	op.IoSize = uint32(st.BlockSize)
	op.Blocks = uint64(st.BlocksTotal)
	op.BlocksFree = uint64(st.BlocksTotal - st.BlocksUsed)
	op.BlocksAvailable = op.BlocksFree
	op.Inodes = uint64(st.InodesTotal)
	op.InodesFree = uint64(st.InodesTotal - st.InodesUsed)
	return nil
}

// LookUpInode looks up a child of the root by name.
func (tf *TfsFuse) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp) error {
	if err := checkParent(op.Parent); err != nil {
		return err
	}
	inum, err := tf.fs.Lookup(enginePath(op.Name))
	if err != nil {
		return tf.errno("LookUpInode", err)
	}
	return tf.errno("LookUpInode", tf.fillEntry(&op.Entry, inum))
}

// GetInodeAttributes reports the attributes of an inode.
func (tf *TfsFuse) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp) error {
	attr, err := tf.fs.GetAttr(engineInode(op.Inode))
	if err != nil {
		return tf.errno("GetInodeAttributes", err)
	}
	op.Attributes = tf.attributes(attr)
	op.AttributesExpiration = tf.fs.Clock.Now().Add(AttributesTTL)
	return nil
}

// SetInodeAttributes supports truncation to zero only. Mode, owner and
// times are not stored and are ignored.
func (tf *TfsFuse) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp) error {
	inum := engineInode(op.Inode)
	attr, err := tf.fs.GetAttr(inum)
	if err != nil {
		return tf.errno("SetInodeAttributes", err)
	}
	if op.Size != nil && *op.Size != uint64(attr.Size) {
		if *op.Size != 0 {
			return fuse.EINVAL
		}
		if err := tf.fs.Truncate(inum); err != nil {
			return tf.errno("SetInodeAttributes", err)
		}
		if attr, err = tf.fs.GetAttr(inum); err != nil {
			return tf.errno("SetInodeAttributes", err)
		}
	}
	op.Attributes = tf.attributes(attr)
	op.AttributesExpiration = tf.fs.Clock.Now().Add(AttributesTTL)
	return nil
}

// ForgetInode is a no-op: inode lifetime follows directory entries.
func (tf *TfsFuse) ForgetInode(
	ctx context.Context,
	op *fuseops.ForgetInodeOp) error {
	return nil
}

// Destroy tears down the engine.
func (tf *TfsFuse) Destroy() {
	if err := tf.fs.Destroy(); err != nil {
		tf.log.Errorf("Destroy: %v", err)
	}
}
