// Package tfs implements an in-memory file storage engine with a single flat
// root directory, hard and symbolic links and an open file table decoupled
// from inode lifetime.
package tfs

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"
	"github.com/jinzhu/copier"
	"github.com/rarydzu/tfs/locktable"
	"github.com/rarydzu/tfs/tfs/block"
	"github.com/rarydzu/tfs/tfs/config"
	"github.com/rarydzu/tfs/tfs/dir"
	"github.com/rarydzu/tfs/tfs/file"
	"github.com/rarydzu/tfs/tfs/inode"
	"go.uber.org/zap"
)

const (
	// RootInumber is the inumber of the only directory.
	RootInumber = 0
	Separator   = '/'
)

// Tfs is one engine instance. Every table it owns is allocated by New and
// released by Destroy.
//
// Lock order: link lock, then data lock, then the root data lock. The root
// data lock guards the directory and is never held while waiting for another
// lock.
type Tfs struct {
	Name  string
	ID    string
	Clock timeutil.Clock
	log   *zap.SugaredLogger
	cfg   config.Config

	state     sync.RWMutex
	destroyed bool

	inodes *inode.Table
	blocks *block.Pool
	root   *dir.Dir
	files  *file.Table

	dataLocks   *locktable.Table
	linkLocks   *locktable.Table
	handleLocks *locktable.Table
}

// Stats is a usage snapshot of the engine tables.
type Stats struct {
	InodesUsed     int
	InodesTotal    int
	BlocksUsed     int
	BlocksTotal    int
	BlockSize      int
	OpenFiles      int
	OpenFilesTotal int
	DirEntries     int
	DirCapacity    int
}

func New(cfg *config.Config, log *zap.SugaredLogger) (*Tfs, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	fs := &Tfs{
		ID:    uuid.New().String(),
		Clock: timeutil.RealClock(),
		log:   log,
	}
	if err := copier.Copy(&fs.cfg, cfg); err != nil {
		return nil, fmt.Errorf("copy config: %v", err)
	}
	if err := fs.cfg.Validate(); err != nil {
		return nil, err
	}
	fs.Name = fs.cfg.FilesystemName

	var err error
	if fs.inodes, err = inode.New(fs.cfg.MaxInodeCount); err != nil {
		return nil, err
	}
	if fs.blocks, err = block.New(fs.cfg.MaxBlockCount, fs.cfg.BlockSize); err != nil {
		return nil, err
	}
	fs.files = file.New(fs.cfg.MaxOpenFilesCount)
	fs.dataLocks = locktable.New(fs.cfg.MaxInodeCount)
	fs.linkLocks = locktable.New(fs.cfg.MaxInodeCount)
	fs.handleLocks = locktable.New(fs.cfg.MaxOpenFilesCount)

	inum, _, err := fs.inodes.Create(inode.Directory)
	if err != nil {
		return nil, fmt.Errorf("create root: %v", err)
	}
	if inum != RootInumber {
		return nil, fmt.Errorf("root created as inode %d", inum)
	}
	idx, gen, err := fs.blocks.Alloc()
	if err != nil {
		return nil, fmt.Errorf("root block: %v", err)
	}
	if fs.root, err = dir.New(fs.blocks.Get(idx)); err != nil {
		return nil, err
	}
	rootInode, err := fs.inodes.Get(RootInumber)
	if err != nil {
		return nil, err
	}
	t := fs.Clock.Now()
	rootInode.DataBlock = idx
	rootInode.BlockGen = gen
	rootInode.Size = fs.cfg.BlockSize
	rootInode.Ctime = t
	rootInode.Mtime = t
	fs.log.Debugf("filesystem %s(%s): %d inodes, %d blocks of %d bytes, %d open files, %d directory slots",
		fs.Name, fs.ID, fs.cfg.MaxInodeCount, fs.cfg.MaxBlockCount, fs.cfg.BlockSize,
		fs.cfg.MaxOpenFilesCount, fs.root.Capacity())
	return fs, nil
}

// Destroy releases every table. Later calls fail with ErrDestroyed.
func (fs *Tfs) Destroy() error {
	fs.state.Lock()
	defer fs.state.Unlock()
	if fs.destroyed {
		return ErrDestroyed
	}
	if open := fs.files.Len(); open > 0 {
		fs.log.Debugf("Destroy: dropping %d open handles", open)
	}
	fs.destroyed = true
	fs.inodes = nil
	fs.blocks = nil
	fs.root = nil
	fs.files = nil
	fs.dataLocks = nil
	fs.linkLocks = nil
	fs.handleLocks = nil
	fs.log.Infof("filesystem %s destroyed", fs.Name)
	return nil
}

// enter admits an operation. Every successful enter must be paired with
// leave; operations never nest.
func (fs *Tfs) enter() error {
	fs.state.RLock()
	if fs.destroyed {
		fs.state.RUnlock()
		return ErrDestroyed
	}
	return nil
}

func (fs *Tfs) leave() {
	fs.state.RUnlock()
}

// Config returns a copy of the engine configuration.
func (fs *Tfs) Config() config.Config {
	return fs.cfg
}

func (fs *Tfs) BlockSize() int {
	return fs.cfg.BlockSize
}

// parsePath strips the separator from a path. Further separators are part
// of the name.
func parsePath(path string) (string, error) {
	if len(path) < 2 || path[0] != Separator {
		return "", ErrInvalidPath
	}
	return path[1:], nil
}

// lookup scans the root directory for name.
func (fs *Tfs) lookup(name string) (int, error) {
	fs.dataLocks.RLock(RootInumber)
	defer fs.dataLocks.RUnlock(RootInumber)
	return fs.root.Find(name)
}

// lockName resolves name and write locks its inode in locks. The entry is
// looked up again once the lock is held, since an unlink may have raced us.
func (fs *Tfs) lockName(locks *locktable.Table, name string) (int, error) {
	for {
		inum, err := fs.lookup(name)
		if err != nil {
			return -1, err
		}
		locks.Lock(inum)
		again, err := fs.lookup(name)
		if err == nil && again == inum {
			return inum, nil
		}
		locks.Unlock(inum)
		if err != nil {
			return -1, err
		}
	}
}

func (fs *Tfs) validInumber(inum int) bool {
	return inum >= 0 && inum < fs.inodes.Count()
}

// Lookup returns the inumber path names.
func (fs *Tfs) Lookup(path string) (int, error) {
	if err := fs.enter(); err != nil {
		return -1, err
	}
	defer fs.leave()
	name, err := parsePath(path)
	if err != nil {
		return -1, fs.opErr("lookup", path, err)
	}
	inum, err := fs.lookup(name)
	if err != nil {
		return -1, fs.opErr("lookup", path, err)
	}
	return inum, nil
}

// GetAttr returns a copy of the inode record.
func (fs *Tfs) GetAttr(inum int) (inode.Inode, error) {
	if err := fs.enter(); err != nil {
		return inode.Inode{}, err
	}
	defer fs.leave()
	if !fs.validInumber(inum) {
		return inode.Inode{}, fs.opErr("getattr", fmt.Sprint(inum), ErrNotFound)
	}
	fs.linkLocks.RLock(inum)
	defer fs.linkLocks.RUnlock(inum)
	fs.dataLocks.RLock(inum)
	defer fs.dataLocks.RUnlock(inum)
	ind, err := fs.inodes.Get(inum)
	if err != nil {
		return inode.Inode{}, fs.opErr("getattr", fmt.Sprint(inum), err)
	}
	return *ind, nil
}

// ReadDir lists the root directory in slot order.
func (fs *Tfs) ReadDir() ([]dir.Entry, error) {
	if err := fs.enter(); err != nil {
		return nil, err
	}
	defer fs.leave()
	fs.dataLocks.RLock(RootInumber)
	defer fs.dataLocks.RUnlock(RootInumber)
	entries, err := fs.root.Entries()
	if err != nil {
		return nil, fs.opErr("readdir", "/", err)
	}
	return entries, nil
}

func (fs *Tfs) Stat() (Stats, error) {
	if err := fs.enter(); err != nil {
		return Stats{}, err
	}
	defer fs.leave()
	fs.dataLocks.RLock(RootInumber)
	entries, err := fs.root.Entries()
	fs.dataLocks.RUnlock(RootInumber)
	if err != nil {
		return Stats{}, fs.opErr("stat", "/", err)
	}
	return Stats{
		InodesUsed:     fs.inodes.Used(),
		InodesTotal:    fs.inodes.Count(),
		BlocksUsed:     fs.blocks.Used(),
		BlocksTotal:    fs.blocks.Count(),
		BlockSize:      fs.blocks.BlockSize(),
		OpenFiles:      fs.files.Len(),
		OpenFilesTotal: fs.files.Size(),
		DirEntries:     len(entries),
		DirCapacity:    fs.root.Capacity(),
	}, nil
}
