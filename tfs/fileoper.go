package tfs

import (
	"errors"
	"fmt"
	"io"

	"github.com/rarydzu/tfs/tfs/dir"
	"github.com/rarydzu/tfs/tfs/file"
	"github.com/rarydzu/tfs/tfs/inode"
)

// Mode is a combination of open flags.
type Mode int

const (
	// OCreate creates the file if it is missing.
	OCreate Mode = 1 << iota
	// OTrunc drops existing content on open.
	OTrunc
	// OAppend starts the cursor at the end of the file and keeps cursor writes
	// there.
	OAppend
)

const copyChunkSize = 128

// Open resolves path, following symlinks, and registers a new handle.
func (fs *Tfs) Open(path string, mode Mode) (int, error) {
	if err := fs.enter(); err != nil {
		return -1, err
	}
	defer fs.leave()
	name, err := parsePath(path)
	if err != nil {
		return -1, fs.opErr("open", path, err)
	}
	for {
		inum, err := fs.lockName(fs.dataLocks, name)
		if err == nil {
			final, err := fs.resolve(inum)
			if err != nil {
				return -1, fs.opErr("open", path, err)
			}
			h, err := fs.register(final, mode)
			return h, fs.opErr("open", path, err)
		}
		if !errors.Is(err, dir.ErrNotFound) || mode&OCreate == 0 {
			return -1, fs.opErr("open", path, err)
		}
		h, err := fs.create(name, mode)
		if errors.Is(err, dir.ErrExists) {
			// someone else created it first
			continue
		}
		return h, fs.opErr("open", path, err)
	}
}

// OpenInode registers a new handle for a file addressed by inumber.
func (fs *Tfs) OpenInode(inum int, mode Mode) (int, error) {
	if err := fs.enter(); err != nil {
		return -1, err
	}
	defer fs.leave()
	where := fmt.Sprint(inum)
	if inum == RootInumber {
		return -1, fs.opErr("open", where, ErrWrongType)
	}
	if !fs.validInumber(inum) {
		return -1, fs.opErr("open", where, ErrNotFound)
	}
	fs.dataLocks.Lock(inum)
	ind, err := fs.inodes.Get(inum)
	if err != nil {
		fs.dataLocks.Unlock(inum)
		return -1, fs.opErr("open", where, err)
	}
	if ind.Type != inode.File {
		fs.dataLocks.Unlock(inum)
		return -1, fs.opErr("open", where, ErrWrongType)
	}
	h, err := fs.register(inum, mode)
	return h, fs.opErr("open", where, err)
}

// resolve follows symlinks from the locked inode inum and returns the locked
// final inode. On failure nothing is left locked. At most two inode locks are
// held at a time; when the next lock is contended the previous one is given
// up first, so a symlink cycle can never deadlock two resolvers.
func (fs *Tfs) resolve(inum int) (int, error) {
	cur := inum
	for hops := 0; ; hops++ {
		ind, err := fs.inodes.Get(cur)
		if err != nil {
			fs.invariant("locked inode %d vanished: %v", cur, err)
		}
		if ind.Type != inode.Symlink {
			return cur, nil
		}
		if hops >= fs.cfg.MaxInodeCount {
			fs.dataLocks.Unlock(cur)
			return -1, ErrTooManyLinks
		}
		name, err := parsePath(fs.symlinkTarget(ind))
		if err != nil {
			fs.dataLocks.Unlock(cur)
			return -1, err
		}
		next, err := fs.lookup(name)
		if err != nil {
			fs.dataLocks.Unlock(cur)
			return -1, err
		}
		if next != cur && fs.dataLocks.TryLock(next) {
			if again, err := fs.lookup(name); err == nil && again == next {
				fs.dataLocks.Unlock(cur)
				cur = next
				continue
			}
			fs.dataLocks.Unlock(next)
		}
		// Giving up cur before taking next is the same as an open that ran
		// just after a concurrent unlink of cur.
		fs.dataLocks.Unlock(cur)
		if cur, err = fs.lockName(fs.dataLocks, name); err != nil {
			return -1, err
		}
	}
}

// register adds a handle for the locked file inum and releases the lock.
func (fs *Tfs) register(inum int, mode Mode) (int, error) {
	defer fs.dataLocks.Unlock(inum)
	ind, err := fs.inodes.Get(inum)
	if err != nil {
		fs.invariant("locked inode %d vanished: %v", inum, err)
	}
	if ind.Type != inode.File {
		return -1, ErrWrongType
	}
	if mode&OTrunc != 0 {
		fs.truncateLocked(ind)
	}
	if mode&OAppend != 0 {
		return fs.files.AddAppending(inum, ind.Generation, ind.Size)
	}
	return fs.files.Add(inum, ind.Generation, 0)
}

// create makes a new file named name and opens it. If the directory rejects
// the name the inode is released again. If only the handle cannot be
// registered the file stays created.
func (fs *Tfs) create(name string, mode Mode) (int, error) {
	inum, gen, err := fs.inodes.Create(inode.File)
	if err != nil {
		return -1, err
	}
	fs.dataLocks.Lock(inum)
	defer fs.dataLocks.Unlock(inum)
	ind, err := fs.inodes.Get(inum)
	if err != nil {
		fs.invariant("new inode %d vanished: %v", inum, err)
	}
	t := fs.Clock.Now()
	ind.Ctime = t
	ind.Mtime = t

	fs.dataLocks.Lock(RootInumber)
	err = fs.root.Add(name, inum)
	fs.dataLocks.Unlock(RootInumber)
	if err != nil {
		if _, derr := fs.inodes.Delete(inum); derr != nil {
			fs.invariant("rollback of inode %d: %v", inum, derr)
		}
		return -1, err
	}
	add := fs.files.Add
	if mode&OAppend != 0 {
		add = fs.files.AddAppending
	}
	h, err := add(inum, gen, 0)
	if err != nil {
		fs.log.Debugf("create(%s): inode %d created but not opened: %v", name, inum, err)
		return -1, err
	}
	return h, nil
}

// truncateLocked drops the content of ind. The caller holds its data lock.
func (fs *Tfs) truncateLocked(ind *inode.Inode) {
	if ind.DataBlock == inode.NoBlock && ind.Size == 0 {
		return
	}
	if ind.DataBlock != inode.NoBlock {
		if err := fs.blocks.Free(ind.DataBlock); err != nil {
			fs.invariant("free of owned block %d: %v", ind.DataBlock, err)
		}
	}
	ind.DataBlock = inode.NoBlock
	ind.BlockGen = 0
	ind.Size = 0
	ind.Mtime = fs.Clock.Now()
}

// Truncate drops the content of the file inum.
func (fs *Tfs) Truncate(inum int) error {
	if err := fs.enter(); err != nil {
		return err
	}
	defer fs.leave()
	where := fmt.Sprint(inum)
	if !fs.validInumber(inum) {
		return fs.opErr("truncate", where, ErrNotFound)
	}
	fs.dataLocks.Lock(inum)
	defer fs.dataLocks.Unlock(inum)
	ind, err := fs.inodes.Get(inum)
	if err != nil {
		return fs.opErr("truncate", where, err)
	}
	if ind.Type != inode.File {
		return fs.opErr("truncate", where, ErrWrongType)
	}
	fs.truncateLocked(ind)
	return nil
}

// handle returns the open entry for h. The caller holds the handle lock.
func (fs *Tfs) handle(h int) (*file.FsFile, error) {
	f, err := fs.files.Get(h)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Read copies from the cursor into buf and advances the cursor. Zero bytes
// and no error means end of data.
func (fs *Tfs) Read(h int, buf []byte) (int, error) {
	if err := fs.enter(); err != nil {
		return 0, err
	}
	defer fs.leave()
	where := fmt.Sprint(h)
	if !fs.files.Valid(h) {
		return 0, fs.opErr("read", where, ErrBadHandle)
	}
	fs.handleLocks.Lock(h)
	defer fs.handleLocks.Unlock(h)
	f, err := fs.handle(h)
	if err != nil {
		return 0, fs.opErr("read", where, err)
	}
	n, err := fs.readAt(f, buf, f.GetOffset())
	if err != nil {
		return 0, fs.opErr("read", where, err)
	}
	f.SetOffset(f.GetOffset() + n)
	return n, nil
}

// ReadAt is Read at an explicit offset. The cursor does not move.
func (fs *Tfs) ReadAt(h int, buf []byte, off int) (int, error) {
	if err := fs.enter(); err != nil {
		return 0, err
	}
	defer fs.leave()
	where := fmt.Sprint(h)
	if !fs.files.Valid(h) {
		return 0, fs.opErr("read", where, ErrBadHandle)
	}
	if off < 0 {
		return 0, fs.opErr("read", where, ErrInvalidOffset)
	}
	fs.handleLocks.RLock(h)
	defer fs.handleLocks.RUnlock(h)
	f, err := fs.handle(h)
	if err != nil {
		return 0, fs.opErr("read", where, err)
	}
	n, err := fs.readAt(f, buf, off)
	return n, fs.opErr("read", where, err)
}

func (fs *Tfs) readAt(f *file.FsFile, buf []byte, off int) (int, error) {
	inum := f.GetInode()
	fs.dataLocks.RLock(inum)
	defer fs.dataLocks.RUnlock(inum)
	switch fs.inodes.Check(inum, f.GetGeneration()) {
	case inode.Live:
		ind, err := fs.inodes.Get(inum)
		if err != nil {
			fs.invariant("open inode %d vanished: %v", inum, err)
		}
		n := available(ind.Size, off, len(buf))
		if n == 0 {
			return 0, nil
		}
		return copy(buf[:n], fs.blocks.Get(ind.DataBlock)[off:]), nil
	case inode.Unlinked:
		// the slot was not reused yet; the old content is still in place
		old, err := fs.inodes.Snapshot(inum, f.GetGeneration())
		if err != nil {
			return 0, ErrStaleHandle
		}
		n := available(old.Size, off, len(buf))
		if n == 0 {
			return 0, nil
		}
		n, err = fs.blocks.ReadStale(old.DataBlock, old.BlockGen, off, buf[:n])
		if err != nil {
			return 0, ErrStaleHandle
		}
		return n, nil
	}
	return 0, ErrStaleHandle
}

func available(size, off, want int) int {
	n := size - off
	if n > want {
		n = want
	}
	if n < 0 {
		return 0
	}
	return n
}

// Write copies data at the cursor and advances it. Append handles write at
// end-of-file instead. A file never grows past one block: bytes beyond it are
// dropped and the short count is returned.
func (fs *Tfs) Write(h int, data []byte) (int, error) {
	if err := fs.enter(); err != nil {
		return 0, err
	}
	defer fs.leave()
	where := fmt.Sprint(h)
	if !fs.files.Valid(h) {
		return 0, fs.opErr("write", where, ErrBadHandle)
	}
	fs.handleLocks.Lock(h)
	defer fs.handleLocks.Unlock(h)
	f, err := fs.handle(h)
	if err != nil {
		return 0, fs.opErr("write", where, err)
	}
	n, end, err := fs.writeAt(f, data, f.GetOffset(), f.Appending())
	if err != nil {
		return 0, fs.opErr("write", where, err)
	}
	f.SetOffset(end)
	return n, nil
}

// WriteAt is Write at an explicit offset. The cursor does not move.
func (fs *Tfs) WriteAt(h int, data []byte, off int) (int, error) {
	if err := fs.enter(); err != nil {
		return 0, err
	}
	defer fs.leave()
	where := fmt.Sprint(h)
	if !fs.files.Valid(h) {
		return 0, fs.opErr("write", where, ErrBadHandle)
	}
	if off < 0 {
		return 0, fs.opErr("write", where, ErrInvalidOffset)
	}
	fs.handleLocks.RLock(h)
	defer fs.handleLocks.RUnlock(h)
	f, err := fs.handle(h)
	if err != nil {
		return 0, fs.opErr("write", where, err)
	}
	n, _, err := fs.writeAt(f, data, off, false)
	return n, fs.opErr("write", where, err)
}

// writeAt returns the byte count and the offset just past the last byte
// written. With atEnd set off is replaced by the size under the data lock.
func (fs *Tfs) writeAt(f *file.FsFile, data []byte, off int, atEnd bool) (int, int, error) {
	inum := f.GetInode()
	fs.dataLocks.Lock(inum)
	defer fs.dataLocks.Unlock(inum)
	switch fs.inodes.Check(inum, f.GetGeneration()) {
	case inode.Live:
	case inode.Unlinked:
		return fs.writeStale(f, data, off, atEnd)
	default:
		return 0, off, ErrStaleHandle
	}
	ind, err := fs.inodes.Get(inum)
	if err != nil {
		fs.invariant("open inode %d vanished: %v", inum, err)
	}
	if atEnd {
		off = ind.Size
	}
	n := len(data)
	if room := fs.blocks.BlockSize() - off; n > room {
		n = room
	}
	if n <= 0 {
		return 0, off, nil
	}
	if ind.DataBlock == inode.NoBlock {
		idx, gen, err := fs.blocks.Alloc()
		if err != nil {
			return 0, off, err
		}
		ind.DataBlock = idx
		ind.BlockGen = gen
	}
	copy(fs.blocks.Get(ind.DataBlock)[off:off+n], data)
	if end := off + n; end > ind.Size {
		ind.Size = end
	}
	ind.Mtime = fs.Clock.Now()
	return n, off + n, nil
}

// writeStale writes into the block a deleted inode left behind while neither
// the slot nor the block was handed out again. A deleted inode without a
// block never gets one. The caller holds the data lock.
func (fs *Tfs) writeStale(f *file.FsFile, data []byte, off int, atEnd bool) (int, int, error) {
	inum, gen := f.GetInode(), f.GetGeneration()
	old, err := fs.inodes.Snapshot(inum, gen)
	if err != nil || old.DataBlock == inode.NoBlock {
		return 0, off, ErrStaleHandle
	}
	if atEnd {
		off = old.Size
	}
	n := len(data)
	if room := fs.blocks.BlockSize() - off; n > room {
		n = room
	}
	if n <= 0 {
		return 0, off, nil
	}
	n, err = fs.blocks.WriteStale(old.DataBlock, old.BlockGen, off, data[:n])
	if err != nil {
		return 0, off, ErrStaleHandle
	}
	if err := fs.inodes.GrowStale(inum, gen, off+n, fs.Clock.Now()); err != nil {
		return 0, off, ErrStaleHandle
	}
	return n, off + n, nil
}

// Close removes handle h from the open file table.
func (fs *Tfs) Close(h int) error {
	if err := fs.enter(); err != nil {
		return err
	}
	defer fs.leave()
	where := fmt.Sprint(h)
	if !fs.files.Valid(h) {
		return fs.opErr("close", where, ErrBadHandle)
	}
	fs.handleLocks.Lock(h)
	defer fs.handleLocks.Unlock(h)
	return fs.opErr("close", where, fs.files.Remove(h))
}

// Inumber returns the inode an open handle refers to.
func (fs *Tfs) Inumber(h int) (int, error) {
	if err := fs.enter(); err != nil {
		return -1, err
	}
	defer fs.leave()
	where := fmt.Sprint(h)
	if !fs.files.Valid(h) {
		return -1, fs.opErr("inumber", where, ErrBadHandle)
	}
	fs.handleLocks.RLock(h)
	defer fs.handleLocks.RUnlock(h)
	f, err := fs.handle(h)
	if err != nil {
		return -1, fs.opErr("inumber", where, err)
	}
	return f.GetInode(), nil
}

// CopyFromExternal creates or truncates dest and fills it from src until src
// is exhausted or the file holds a full block. Source data past one block is
// dropped without error.
func (fs *Tfs) CopyFromExternal(src io.Reader, dest string) error {
	h, err := fs.Open(dest, OCreate|OTrunc)
	if err != nil {
		return err
	}
	buf := make([]byte, copyChunkSize)
	total := 0
	for total < fs.BlockSize() {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, err := fs.Write(h, buf[:n])
			total += w
			if err != nil {
				fs.Close(h)
				return err
			}
			if w < n {
				break
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			fs.Close(h)
			return fs.opErr("copy", dest, rerr)
		}
	}
	fs.log.Debugf("copied %d bytes into %s", total, dest)
	return fs.Close(h)
}
