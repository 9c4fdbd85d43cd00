// Package locktable holds fixed arrays of reader/writer locks addressed by
// small integer keys (inumbers, open file handles).
package locktable

import "sync"

type Table struct {
	locks []sync.RWMutex
	size  uint64
}

// New allocates size locks. All locks are created up front and live as long
// as the table.
func New(size int) *Table {
	if size < 1 {
		size = 1
	}
	return &Table{
		locks: make([]sync.RWMutex, size),
		size:  uint64(size),
	}
}

func (t *Table) get(key int) *sync.RWMutex {
	return &t.locks[uint64(key)%t.size]
}

func (t *Table) Lock(key int) {
	t.get(key).Lock()
}

func (t *Table) Unlock(key int) {
	t.get(key).Unlock()
}

func (t *Table) RLock(key int) {
	t.get(key).RLock()
}

func (t *Table) RUnlock(key int) {
	t.get(key).RUnlock()
}

// TryLock acquires the write lock only if it is free.
func (t *Table) TryLock(key int) bool {
	return t.get(key).TryLock()
}

// TryRLock acquires the read lock only if no writer holds it.
func (t *Table) TryRLock(key int) bool {
	return t.get(key).TryRLock()
}

// Size returns the number of locks in the table.
func (t *Table) Size() int {
	return int(t.size)
}
