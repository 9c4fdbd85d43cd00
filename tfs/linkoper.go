package tfs

import (
	"fmt"

	"github.com/rarydzu/tfs/tfs/inode"
)

// Link adds linkPath as another name of the regular file target.
func (fs *Tfs) Link(target, linkPath string) error {
	if err := fs.enter(); err != nil {
		return err
	}
	defer fs.leave()
	tname, err := parsePath(target)
	if err != nil {
		return fs.opErr("link", target, err)
	}
	lname, err := parsePath(linkPath)
	if err != nil {
		return fs.opErr("link", linkPath, err)
	}
	inum, err := fs.lockName(fs.linkLocks, tname)
	if err != nil {
		return fs.opErr("link", target, err)
	}
	defer fs.linkLocks.Unlock(inum)
	return fs.opErr("link", linkPath, fs.linkLocked(inum, lname))
}

// LinkInode adds linkPath as another name of the regular file inum.
func (fs *Tfs) LinkInode(inum int, linkPath string) error {
	if err := fs.enter(); err != nil {
		return err
	}
	defer fs.leave()
	lname, err := parsePath(linkPath)
	if err != nil {
		return fs.opErr("link", linkPath, err)
	}
	if !fs.validInumber(inum) {
		return fs.opErr("link", fmt.Sprint(inum), ErrNotFound)
	}
	fs.linkLocks.Lock(inum)
	defer fs.linkLocks.Unlock(inum)
	return fs.opErr("link", linkPath, fs.linkLocked(inum, lname))
}

// linkLocked needs the link lock of inum.
func (fs *Tfs) linkLocked(inum int, name string) error {
	ind, err := fs.inodes.Get(inum)
	if err != nil {
		return err
	}
	if ind.Type != inode.File {
		return ErrWrongType
	}
	fs.dataLocks.Lock(RootInumber)
	err = fs.root.Add(name, inum)
	fs.dataLocks.Unlock(RootInumber)
	if err != nil {
		return err
	}
	ind.LinkCount++
	fs.log.Debugf("link %s -> %d, %d links", name, inum, ind.LinkCount)
	return nil
}

// SymLink creates linkPath as a symlink storing target verbatim. The target
// must resolve now; it is resolved again on every open.
func (fs *Tfs) SymLink(target, linkPath string) error {
	if err := fs.enter(); err != nil {
		return err
	}
	defer fs.leave()
	tname, err := parsePath(target)
	if err != nil {
		return fs.opErr("symlink", target, err)
	}
	lname, err := parsePath(linkPath)
	if err != nil {
		return fs.opErr("symlink", linkPath, err)
	}
	if len(target) > fs.blocks.BlockSize() {
		return fs.opErr("symlink", target, ErrNameTooLong)
	}
	if _, err := fs.lookup(tname); err != nil {
		return fs.opErr("symlink", target, err)
	}
	if _, err := fs.lookup(lname); err == nil {
		return fs.opErr("symlink", linkPath, ErrAlreadyExists)
	}

	inum, _, err := fs.inodes.Create(inode.Symlink)
	if err != nil {
		return fs.opErr("symlink", linkPath, err)
	}
	fs.dataLocks.Lock(inum)
	defer fs.dataLocks.Unlock(inum)
	ind, err := fs.inodes.Get(inum)
	if err != nil {
		fs.invariant("new inode %d vanished: %v", inum, err)
	}
	idx, gen, err := fs.blocks.Alloc()
	if err != nil {
		if _, derr := fs.inodes.Delete(inum); derr != nil {
			fs.invariant("rollback of inode %d: %v", inum, derr)
		}
		return fs.opErr("symlink", linkPath, err)
	}
	t := fs.Clock.Now()
	ind.DataBlock = idx
	ind.BlockGen = gen
	ind.Size = copy(fs.blocks.Get(idx), target)
	ind.Ctime = t
	ind.Mtime = t

	fs.dataLocks.Lock(RootInumber)
	err = fs.root.Add(lname, inum)
	fs.dataLocks.Unlock(RootInumber)
	if err != nil {
		fs.deleteInode(inum)
		return fs.opErr("symlink", linkPath, err)
	}
	return nil
}

// Unlink removes the entry path. The inode goes away with its last name;
// open handles keep their (inumber, generation) and turn stale.
func (fs *Tfs) Unlink(path string) error {
	if err := fs.enter(); err != nil {
		return err
	}
	defer fs.leave()
	name, err := parsePath(path)
	if err != nil {
		return fs.opErr("unlink", path, err)
	}
	inum, err := fs.lockName(fs.linkLocks, name)
	if err != nil {
		return fs.opErr("unlink", path, err)
	}
	defer fs.linkLocks.Unlock(inum)
	fs.dataLocks.Lock(inum)
	defer fs.dataLocks.Unlock(inum)

	fs.dataLocks.Lock(RootInumber)
	err = fs.root.Clear(name)
	fs.dataLocks.Unlock(RootInumber)
	if err != nil {
		return fs.opErr("unlink", path, err)
	}
	ind, err := fs.inodes.Get(inum)
	if err != nil {
		fs.invariant("linked inode %d vanished: %v", inum, err)
	}
	if ind.LinkCount > 1 {
		ind.LinkCount--
		ind.Ctime = fs.Clock.Now()
		return nil
	}
	fs.deleteInode(inum)
	return nil
}

// deleteInode frees inum and its block. The caller holds its data lock.
func (fs *Tfs) deleteInode(inum int) {
	old, err := fs.inodes.Delete(inum)
	if err != nil {
		fs.invariant("delete of inode %d: %v", inum, err)
	}
	if old.DataBlock != inode.NoBlock {
		if err := fs.blocks.Free(old.DataBlock); err != nil {
			fs.invariant("free of block %d owned by inode %d: %v", old.DataBlock, inum, err)
		}
	}
}

// ReadLink returns the target stored in the symlink path.
func (fs *Tfs) ReadLink(path string) (string, error) {
	if err := fs.enter(); err != nil {
		return "", err
	}
	defer fs.leave()
	name, err := parsePath(path)
	if err != nil {
		return "", fs.opErr("readlink", path, err)
	}
	inum, err := fs.lockName(fs.dataLocks, name)
	if err != nil {
		return "", fs.opErr("readlink", path, err)
	}
	defer fs.dataLocks.Unlock(inum)
	target, err := fs.readLinkLocked(inum)
	return target, fs.opErr("readlink", path, err)
}

// ReadLinkInode returns the target stored in the symlink inum.
func (fs *Tfs) ReadLinkInode(inum int) (string, error) {
	if err := fs.enter(); err != nil {
		return "", err
	}
	defer fs.leave()
	where := fmt.Sprint(inum)
	if !fs.validInumber(inum) {
		return "", fs.opErr("readlink", where, ErrNotFound)
	}
	fs.dataLocks.RLock(inum)
	defer fs.dataLocks.RUnlock(inum)
	target, err := fs.readLinkLocked(inum)
	return target, fs.opErr("readlink", where, err)
}

func (fs *Tfs) readLinkLocked(inum int) (string, error) {
	ind, err := fs.inodes.Get(inum)
	if err != nil {
		return "", err
	}
	if ind.Type != inode.Symlink {
		return "", ErrWrongType
	}
	return fs.symlinkTarget(ind), nil
}

func (fs *Tfs) symlinkTarget(ind *inode.Inode) string {
	return string(fs.blocks.Get(ind.DataBlock)[:ind.Size])
}
