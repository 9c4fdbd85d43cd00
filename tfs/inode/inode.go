// Package inode implements the fixed-size inode table.
package inode

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// NoBlock marks an inode that owns no data block.
const NoBlock = -1

var (
	ErrTableFull   = errors.New("inode table full")
	ErrNoSuchInode = errors.New("no such inode")
)

type Type int

const (
	Directory Type = iota
	File
	Symlink
)

func (t Type) String() string {
	switch t {
	case Directory:
		return "directory"
	case File:
		return "file"
	case Symlink:
		return "symlink"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

type Inode struct {
	Type Type
	// Size is the number of valid bytes in the data block.
	Size int
	// DataBlock is the owned block index or NoBlock.
	DataBlock int
	// BlockGen is the pool generation of DataBlock at allocation time.
	BlockGen  uint64
	LinkCount int
	// Generation is bumped every time the slot is handed out.
	Generation uint64
	Ctime      time.Time
	Mtime      time.Time
}

// State describes a slot as seen through a remembered generation.
type State int

const (
	// Live: the slot is in use by the remembered occupant.
	Live State = iota
	// Unlinked: the occupant was deleted and the slot was not reused.
	Unlinked
	// Reused: the slot was handed to a new occupant.
	Reused
)

// Table owns the inode records and their allocation bitmap. Allocation is
// serialized by the table; record fields of a used slot are guarded by the
// caller's per-inode locks.
type Table struct {
	mu     sync.Mutex
	inodes []Inode
	used   []bool
	free   int
}

func New(count int) (*Table, error) {
	if count <= 0 {
		return nil, fmt.Errorf("inode table: invalid size %d", count)
	}
	t := &Table{
		inodes: make([]Inode, count),
		used:   make([]bool, count),
		free:   count,
	}
	for i := range t.inodes {
		t.inodes[i].DataBlock = NoBlock
	}
	return t, nil
}

// Create initializes the first free slot and returns its inumber and
// generation.
func (t *Table) Create(typ Type) (int, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.free == 0 {
		return -1, 0, ErrTableFull
	}
	for i, used := range t.used {
		if used {
			continue
		}
		gen := t.inodes[i].Generation + 1
		t.inodes[i] = Inode{
			Type:       typ,
			DataBlock:  NoBlock,
			LinkCount:  1,
			Generation: gen,
		}
		t.used[i] = true
		t.free--
		return i, gen, nil
	}
	return -1, 0, ErrTableFull
}

// Delete marks the slot free and returns the record it held. The record is
// left in place so that stale readers can still see it until reuse.
func (t *Table) Delete(inum int) (Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(inum) || !t.used[inum] {
		return Inode{}, fmt.Errorf("delete %d: %w", inum, ErrNoSuchInode)
	}
	t.used[inum] = false
	t.free++
	return t.inodes[inum], nil
}

// Get returns the live record for inum. The caller must hold the lock that
// guards the fields it touches.
func (t *Table) Get(inum int) (*Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(inum) || !t.used[inum] {
		return nil, ErrNoSuchInode
	}
	return &t.inodes[inum], nil
}

// Check classifies inum as seen by a holder of generation gen.
func (t *Table) Check(inum int, gen uint64) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(inum) || t.inodes[inum].Generation != gen {
		return Reused
	}
	if t.used[inum] {
		return Live
	}
	return Unlinked
}

// Snapshot copies a deleted record that still carries generation gen.
func (t *Table) Snapshot(inum int, gen uint64) (Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(inum) || t.used[inum] || t.inodes[inum].Generation != gen {
		return Inode{}, ErrNoSuchInode
	}
	return t.inodes[inum], nil
}

// GrowStale extends the size of a deleted record that still carries
// generation gen and stamps its mtime.
func (t *Table) GrowStale(inum int, gen uint64, size int, mtime time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(inum) || t.used[inum] || t.inodes[inum].Generation != gen {
		return ErrNoSuchInode
	}
	ind := &t.inodes[inum]
	if size > ind.Size {
		ind.Size = size
	}
	ind.Mtime = mtime
	return nil
}

// Count returns the table size.
func (t *Table) Count() int {
	return len(t.inodes)
}

// Used returns the number of allocated slots.
func (t *Table) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inodes) - t.free
}

func (t *Table) valid(inum int) bool {
	return inum >= 0 && inum < len(t.inodes)
}
