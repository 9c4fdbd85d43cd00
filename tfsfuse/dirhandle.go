package tfsfuse

import (
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// DirHandle is an open directory stream over a snapshot of the root entries.
type DirHandle struct {
	inode    fuseops.InodeID
	dentries []fuseutil.Dirent
}

func NewDirHandle(inode fuseops.InodeID, dentries []fuseutil.Dirent) *DirHandle {
	return &DirHandle{
		inode:    inode,
		dentries: dentries,
	}
}

// GetInodeID returns inode id
func (dir *DirHandle) GetInodeID() fuseops.InodeID {
	return dir.inode
}

// Rewind replaces the snapshot, as a rewinddir does.
func (dir *DirHandle) Rewind(dentries []fuseutil.Dirent) {
	dir.dentries = dentries
}

// Entries returns the entries from offset on.
func (dir *DirHandle) Entries(offset fuseops.DirOffset) []fuseutil.Dirent {
	if int(offset) >= len(dir.dentries) {
		return nil
	}
	return dir.dentries[offset:]
}

// CacheSize returns the snapshot size.
func (dir *DirHandle) CacheSize() int {
	return len(dir.dentries)
}
