package tfsfuse

import (
	"context"
	"os"
	"syscall"
	"testing"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/rarydzu/tfs/tfs"
	"github.com/rarydzu/tfs/tfs/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFuse(t *testing.T) *TfsFuse {
	cfg := config.Default()
	cfg.BlockSize = 256
	fs, err := tfs.New(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	tf, err := New(fs, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(tf.Destroy)
	return tf
}

func create(t *testing.T, tf *TfsFuse, name string) *fuseops.CreateFileOp {
	op := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: name, Mode: 0644}
	require.NoError(t, tf.CreateFile(context.Background(), op))
	return op
}

func TestCreateWriteRead(t *testing.T) {
	ctx := context.Background()
	tf := newTestFuse(t)
	op := create(t, tf, "box")
	assert.Equal(t, fuseops.InodeID(2), op.Entry.Child)
	assert.Equal(t, os.FileMode(0644), op.Entry.Attributes.Mode)

	require.NoError(t, tf.WriteFile(ctx, &fuseops.WriteFileOp{
		Inode: op.Entry.Child, Handle: op.Handle, Offset: 0, Data: []byte("hello"),
	}))
	read := &fuseops.ReadFileOp{Inode: op.Entry.Child, Handle: op.Handle, Offset: 1, Dst: make([]byte, 16)}
	require.NoError(t, tf.ReadFile(ctx, read))
	assert.Equal(t, "ello", string(read.Dst[:read.BytesRead]))

	attrs := &fuseops.GetInodeAttributesOp{Inode: op.Entry.Child}
	require.NoError(t, tf.GetInodeAttributes(ctx, attrs))
	assert.Equal(t, uint64(5), attrs.Attributes.Size)
	assert.Equal(t, uint32(1), attrs.Attributes.Nlink)

	require.NoError(t, tf.ReleaseFileHandle(ctx, &fuseops.ReleaseFileHandleOp{Handle: op.Handle}))
	err := tf.ReleaseFileHandle(ctx, &fuseops.ReleaseFileHandleOp{Handle: op.Handle})
	assert.Equal(t, syscall.EBADF, err)
}

func TestWriteTooLarge(t *testing.T) {
	ctx := context.Background()
	tf := newTestFuse(t)
	op := create(t, tf, "big")
	err := tf.WriteFile(ctx, &fuseops.WriteFileOp{
		Inode: op.Entry.Child, Handle: op.Handle, Offset: 200, Data: make([]byte, 100),
	})
	assert.Equal(t, syscall.EFBIG, err)
}

func TestLookUpAndNonRootParent(t *testing.T) {
	ctx := context.Background()
	tf := newTestFuse(t)
	op := create(t, tf, "a")

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "a"}
	require.NoError(t, tf.LookUpInode(ctx, lookup))
	assert.Equal(t, op.Entry.Child, lookup.Entry.Child)

	missing := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "b"}
	assert.Equal(t, fuse.ENOENT, tf.LookUpInode(ctx, missing))

	nested := &fuseops.LookUpInodeOp{Parent: op.Entry.Child, Name: "a"}
	assert.Equal(t, fuse.ENOTDIR, tf.LookUpInode(ctx, nested))
	assert.Equal(t, fuse.ENOTDIR, tf.OpenDir(ctx, &fuseops.OpenDirOp{Inode: op.Entry.Child}))
}

func TestLinksAndUnlink(t *testing.T) {
	ctx := context.Background()
	tf := newTestFuse(t)
	op := create(t, tf, "f1")

	link := &fuseops.CreateLinkOp{Parent: fuseops.RootInodeID, Name: "l1", Target: op.Entry.Child}
	require.NoError(t, tf.CreateLink(ctx, link))
	assert.Equal(t, uint32(2), link.Entry.Attributes.Nlink)

	sym := &fuseops.CreateSymlinkOp{Parent: fuseops.RootInodeID, Name: "s1", Target: "f1"}
	require.NoError(t, tf.CreateSymlink(ctx, sym))
	assert.Equal(t, os.ModeSymlink|0777, sym.Entry.Attributes.Mode)

	readlink := &fuseops.ReadSymlinkOp{Inode: sym.Entry.Child}
	require.NoError(t, tf.ReadSymlink(ctx, readlink))
	assert.Equal(t, "f1", readlink.Target)

	bad := &fuseops.CreateSymlinkOp{Parent: fuseops.RootInodeID, Name: "s2", Target: "nope"}
	assert.Equal(t, fuse.ENOENT, tf.CreateSymlink(ctx, bad))

	require.NoError(t, tf.Unlink(ctx, &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "l1"}))
	assert.Equal(t, fuse.ENOENT, tf.Unlink(ctx, &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "l1"}))
}

func TestTruncateAttributes(t *testing.T) {
	ctx := context.Background()
	tf := newTestFuse(t)
	op := create(t, tf, "t")
	require.NoError(t, tf.WriteFile(ctx, &fuseops.WriteFileOp{
		Inode: op.Entry.Child, Handle: op.Handle, Data: []byte("content"),
	}))

	size := uint64(3)
	assert.Equal(t, fuse.EINVAL, tf.SetInodeAttributes(ctx, &fuseops.SetInodeAttributesOp{Inode: op.Entry.Child, Size: &size}))

	size = 0
	set := &fuseops.SetInodeAttributesOp{Inode: op.Entry.Child, Size: &size}
	require.NoError(t, tf.SetInodeAttributes(ctx, set))
	assert.Equal(t, uint64(0), set.Attributes.Size)
}

func TestReadDir(t *testing.T) {
	ctx := context.Background()
	tf := newTestFuse(t)
	create(t, tf, "one")
	create(t, tf, "two")

	open := &fuseops.OpenDirOp{Inode: fuseops.RootInodeID}
	require.NoError(t, tf.OpenDir(ctx, open))
	read := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Handle: open.Handle, Dst: make([]byte, 4096)}
	require.NoError(t, tf.ReadDir(ctx, read))
	assert.True(t, read.BytesRead > 0)

	// past the end
	tail := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Handle: open.Handle, Offset: 2, Dst: make([]byte, 4096)}
	require.NoError(t, tf.ReadDir(ctx, tail))
	assert.Equal(t, 0, tail.BytesRead)

	require.NoError(t, tf.ReleaseDirHandle(ctx, &fuseops.ReleaseDirHandleOp{Handle: open.Handle}))
	assert.Equal(t, fuse.EINVAL, tf.ReadDir(ctx, read))
}

func TestStatFS(t *testing.T) {
	tf := newTestFuse(t)
	create(t, tf, "x")
	op := &fuseops.StatFSOp{}
	require.NoError(t, tf.StatFS(context.Background(), op))
	assert.Equal(t, uint32(256), op.BlockSize)
	assert.Equal(t, uint64(config.DefaultMaxBlockCount), op.Blocks)
	assert.Equal(t, uint64(config.DefaultMaxBlockCount-1), op.BlocksFree)
	assert.Equal(t, uint64(config.DefaultMaxInodeCount-2), op.InodesFree)
}

func TestDirentsSkipRemoved(t *testing.T) {
	tf := newTestFuse(t)
	create(t, tf, "keep")
	dentries, err := tf.dentries()
	require.NoError(t, err)
	require.Len(t, dentries, 1)
	assert.Equal(t, "keep", dentries[0].Name)
	assert.Equal(t, fuseops.DirOffset(1), dentries[0].Offset)
}
