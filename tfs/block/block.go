// Package block implements the fixed-size data block pool.
package block

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrPoolExhausted = errors.New("no free data block")
	ErrInvalidBlock  = errors.New("invalid data block")
	// ErrReallocated is returned when a block was handed to a new owner
	// after the generation the caller remembers.
	ErrReallocated = errors.New("data block reallocated")
)

// Pool is a fixed array of blockSize byte slots with an allocation table.
// Every allocation bumps the slot generation so that stale owners can detect
// reuse. Freed blocks are not wiped; they are zeroed when handed out again.
type Pool struct {
	mu         sync.Mutex
	blockSize  int
	data       []byte
	used       []bool
	generation []uint64
	free       int
}

// New allocates count blocks of blockSize bytes.
func New(count, blockSize int) (*Pool, error) {
	if count <= 0 || blockSize <= 0 {
		return nil, fmt.Errorf("block pool: invalid geometry %dx%d", count, blockSize)
	}
	return &Pool{
		blockSize:  blockSize,
		data:       make([]byte, count*blockSize),
		used:       make([]bool, count),
		generation: make([]uint64, count),
		free:       count,
	}, nil
}

// Alloc returns the first free block and its new generation.
func (p *Pool) Alloc() (int, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.free == 0 {
		return -1, 0, ErrPoolExhausted
	}
	for i, used := range p.used {
		if used {
			continue
		}
		p.used[i] = true
		p.generation[i]++
		p.free--
		b := p.slot(i)
		for x := range b {
			b[x] = 0
		}
		return i, p.generation[i], nil
	}
	return -1, 0, ErrPoolExhausted
}

// Free marks the block as free. Its content stays in place.
func (p *Pool) Free(idx int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.used) || !p.used[idx] {
		return fmt.Errorf("free %d: %w", idx, ErrInvalidBlock)
	}
	p.used[idx] = false
	p.free++
	return nil
}

// Get returns the block content. The caller must own the block.
func (p *Pool) Get(idx int) []byte {
	if idx < 0 || idx >= len(p.used) {
		return nil
	}
	return p.slot(idx)
}

// ReadStale copies block content at off into dst on behalf of an owner that
// released the block with the given generation. It fails with ErrReallocated
// once the block was allocated again.
func (p *Pool) ReadStale(idx int, generation uint64, off int, dst []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.used) {
		return 0, ErrInvalidBlock
	}
	if p.generation[idx] != generation {
		return 0, ErrReallocated
	}
	if off < 0 || off >= p.blockSize {
		return 0, nil
	}
	return copy(dst, p.slot(idx)[off:]), nil
}

// WriteStale is the write counterpart of ReadStale. Bytes past the end of the
// block are dropped.
func (p *Pool) WriteStale(idx int, generation uint64, off int, src []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.used) {
		return 0, ErrInvalidBlock
	}
	if p.generation[idx] != generation {
		return 0, ErrReallocated
	}
	if off < 0 || off >= p.blockSize {
		return 0, nil
	}
	return copy(p.slot(idx)[off:], src), nil
}

// Generation returns the current generation of a block.
func (p *Pool) Generation(idx int) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.generation) {
		return 0
	}
	return p.generation[idx]
}

func (p *Pool) BlockSize() int {
	return p.blockSize
}

// Count returns the total number of blocks.
func (p *Pool) Count() int {
	return len(p.used)
}

// Used returns the number of allocated blocks.
func (p *Pool) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.used) - p.free
}

func (p *Pool) slot(idx int) []byte {
	start := idx * p.blockSize
	end := start + p.blockSize
	return p.data[start:end:end]
}
