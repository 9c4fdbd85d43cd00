// Package dir stores the flat root directory inside a data block.
package dir

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("no such directory entry")
	ErrExists        = errors.New("directory entry exists")
	ErrDirectoryFull = errors.New("directory full")
	ErrNameTooLong   = errors.New("name too long")
	ErrInvalidName   = errors.New("invalid name")
	ErrCorrupt       = errors.New("corrupt directory entry")
)

type Entry struct {
	Name    string
	Inumber int
}

// Dir interprets a block as an array of fixed-size records. It does no
// locking: callers serialize through the directory inode's lock.
type Dir struct {
	block []byte
	slots int
}

// New wraps a zeroed block. It fails if not even one record fits.
func New(block []byte) (*Dir, error) {
	slots := len(block) / RecordSize
	if slots == 0 {
		return nil, fmt.Errorf("block of %d bytes holds no directory entry", len(block))
	}
	return &Dir{block: block, slots: slots}, nil
}

func (d *Dir) slot(i int) []byte {
	start := i * RecordSize
	return d.block[start : start+RecordSize]
}

func (d *Dir) record(i int) (*Record, error) {
	r := &Record{}
	if err := r.Decode(d.slot(i)); err != nil {
		return nil, fmt.Errorf("slot %d: %w", i, err)
	}
	return r, nil
}

// Find returns the inumber of the entry named name.
func (d *Dir) Find(name string) (int, error) {
	i, r, err := d.find(name)
	if err != nil {
		return -1, err
	}
	if i < 0 {
		return -1, ErrNotFound
	}
	return int(r.Inumber), nil
}

func (d *Dir) find(name string) (int, *Record, error) {
	for i := 0; i < d.slots; i++ {
		r, err := d.record(i)
		if err != nil {
			return -1, nil, err
		}
		if r.IsUsed() && r.Name == name {
			return i, r, nil
		}
	}
	return -1, nil, nil
}

// Add stores name in the first free slot.
func (d *Dir) Add(name string, inumber int) error {
	if len(name) == 0 {
		return ErrInvalidName
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%q: %w", name, ErrNameTooLong)
	}
	free := -1
	for i := 0; i < d.slots; i++ {
		r, err := d.record(i)
		if err != nil {
			return err
		}
		if !r.IsUsed() {
			if free < 0 {
				free = i
			}
			continue
		}
		if r.Name == name {
			return fmt.Errorf("%q: %w", name, ErrExists)
		}
	}
	if free < 0 {
		return ErrDirectoryFull
	}
	return NewRecord(name, inumber).Encode(d.slot(free))
}

// Clear empties the first slot holding name. Other slots do not move.
func (d *Dir) Clear(name string) error {
	i, _, err := d.find(name)
	if err != nil {
		return err
	}
	if i < 0 {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	s := d.slot(i)
	for x := range s {
		s[x] = 0
	}
	return nil
}

// Entries lists used slots in slot order.
func (d *Dir) Entries() ([]Entry, error) {
	entries := []Entry{}
	for i := 0; i < d.slots; i++ {
		r, err := d.record(i)
		if err != nil {
			return nil, err
		}
		if r.IsUsed() {
			entries = append(entries, Entry{Name: r.Name, Inumber: int(r.Inumber)})
		}
	}
	return entries, nil
}

// Capacity returns the number of slots in the block.
func (d *Dir) Capacity() int {
	return d.slots
}
