// Package file implements the open file table.
package file

import (
	"errors"
	"sync"
)

var (
	ErrTableFull = errors.New("open file table full")
	ErrBadHandle = errors.New("bad file handle")
)

// FsFile is one open file table entry. Inumber and Generation are fixed at
// open time; Offset is guarded by the handle lock.
type FsFile struct {
	inumber    int
	generation uint64
	offset     int
	appending  bool
}

func (file *FsFile) GetInode() int {
	return file.inumber
}

func (file *FsFile) GetGeneration() uint64 {
	return file.generation
}

func (file *FsFile) GetOffset() int {
	return file.offset
}

func (file *FsFile) SetOffset(offset int) {
	file.offset = offset
}

// Appending reports whether cursor writes go to end-of-file.
func (file *FsFile) Appending() bool {
	return file.appending
}

// Table is a fixed array of open file entries. Membership changes are
// serialized by the table; entries themselves are guarded by per-handle
// locks held by the caller.
type Table struct {
	mu    sync.Mutex
	files []FsFile
	used  []bool
	open  int
}

func New(size int) *Table {
	return &Table{
		files: make([]FsFile, size),
		used:  make([]bool, size),
	}
}

// Add registers inumber/generation with the given cursor and returns the
// handle.
func (t *Table) Add(inumber int, generation uint64, offset int) (int, error) {
	return t.add(FsFile{inumber: inumber, generation: generation, offset: offset})
}

// AddAppending is Add for a handle whose writes always land at end-of-file.
func (t *Table) AddAppending(inumber int, generation uint64, offset int) (int, error) {
	return t.add(FsFile{inumber: inumber, generation: generation, offset: offset, appending: true})
}

func (t *Table) add(entry FsFile) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, used := range t.used {
		if used {
			continue
		}
		t.files[h] = entry
		t.used[h] = true
		t.open++
		return h, nil
	}
	return -1, ErrTableFull
}

// Get returns the open entry for handle h.
func (t *Table) Get(h int) (*FsFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.Valid(h) || !t.used[h] {
		return nil, ErrBadHandle
	}
	return &t.files[h], nil
}

// Remove closes handle h.
func (t *Table) Remove(h int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.Valid(h) || !t.used[h] {
		return ErrBadHandle
	}
	t.used[h] = false
	t.open--
	return nil
}

// Valid reports whether h is inside the table, open or not.
func (t *Table) Valid(h int) bool {
	return h >= 0 && h < len(t.files)
}

// Size returns the table capacity.
func (t *Table) Size() int {
	return len(t.files)
}

// Len returns the number of open handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}
