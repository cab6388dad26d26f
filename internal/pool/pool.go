// Package pool implements the Slot Pool (spec §4.1): a fixed-capacity,
// index-addressed, occupancy-tracked store of homogeneous elements. It is
// the memory substrate beneath the Slot Manager and is never exposed
// directly to language-level callers, the same way the teacher's slots trie
// (github.com/zephyrtronium/iolang internal/slots.go) is an implementation
// detail behind VM.GetSlot/SetSlot rather than a public type.
package pool

import (
	"sync"
	"sync/atomic"
)

// NullIndex is returned by Alloc when the pool is exhausted.
const NullIndex uint32 = 0xFFFFFFFF

// defaultCacheLineSize is used to round up element sizes and alignment when
// a pool is created with cacheOptimized set, matching the 64-byte assumption
// in original_source/src/runtime/slot_security.h's SECURITY_TOKEN_ENTROPY_BITS
// neighborhood and slot_pool.h's cacheLineSize field.
const defaultCacheLineSize = 64

// Stats holds the monotonic counters specified in §4.1.
type Stats struct {
	TotalAllocations uint64
	TotalDeallocations uint64
	PeakUsage uint64
}

// Pool is a fixed-capacity array of fixed-size elements with a LIFO free
// list and an occupancy bit per slot. All operations are O(1). Pool is safe
// for concurrent use: allocation and free are serialized by a mutex (the
// teacher's slow path precedent; see Slot Manager's own fast/slow path
// split for the higher-level analogue), while statistics are read with
// atomics so PrintStats-equivalents never need the lock.
type Pool struct {
	mu sync.Mutex

	data           [][]byte
	elementSize    int
	capacity       int
	occupied       []bool
	freeList       []uint32
	cacheOptimized bool
	cacheLineSize  int

	totalAllocations   uint64
	totalDeallocations uint64
	peakUsage          uint64
	count              int
}

// Create builds a Pool of the given capacity, each element sized to hold at
// least elementSize bytes. If cacheOptimized is true, elementSize is rounded
// up to a cache-line multiple.
func Create(elementSize, capacity int, cacheOptimized bool) *Pool {
	if elementSize < 0 {
		elementSize = 0
	}
	if capacity < 0 {
		capacity = 0
	}
	size := elementSize
	lineSize := defaultCacheLineSize
	if cacheOptimized && size > 0 {
		size = ((size + lineSize - 1) / lineSize) * lineSize
	}
	p := &Pool{
		data:           make([][]byte, capacity),
		elementSize:    size,
		capacity:       capacity,
		occupied:       make([]bool, capacity),
		freeList:       make([]uint32, capacity),
		cacheOptimized: cacheOptimized,
		cacheLineSize:  lineSize,
	}
	// Free list is initially every index, popped from the top (LIFO), so
	// index 0 is allocated first: populate back-to-front.
	for i := 0; i < capacity; i++ {
		p.freeList[i] = uint32(capacity - 1 - i)
		p.data[i] = make([]byte, size)
	}
	return p
}

// Alloc pops an index off the free list and marks it occupied, or returns
// NullIndex if the pool is at capacity.
func (p *Pool) Alloc() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.freeList) == 0 {
		return NullIndex
	}
	n := len(p.freeList) - 1
	idx := p.freeList[n]
	p.freeList = p.freeList[:n]
	p.occupied[idx] = true
	p.count++
	atomic.AddUint64(&p.totalAllocations, 1)
	if uint64(p.count) > atomic.LoadUint64(&p.peakUsage) {
		atomic.StoreUint64(&p.peakUsage, uint64(p.count))
	}
	return idx
}

// Free returns index to the pool, zeroing its element first. It reports
// false (without panicking) if index is out of range or already free.
func (p *Pool) Free(index uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(index) >= p.capacity || !p.occupied[index] {
		return false
	}
	p.occupied[index] = false
	for i := range p.data[index] {
		p.data[index][i] = 0
	}
	p.freeList = append(p.freeList, index)
	p.count--
	atomic.AddUint64(&p.totalDeallocations, 1)
	return true
}

// Get returns the raw element backing index. The returned slice is valid
// until the next Free of the same index or pool destruction; callers must
// not retain it across a possible reallocation, per §4.1.
func (p *Pool) Get(index uint32) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(index) >= p.capacity || !p.occupied[index] {
		return nil
	}
	return p.data[index]
}

// IsValid reports whether index currently refers to an occupied element.
func (p *Pool) IsValid(index uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(index) < p.capacity && p.occupied[index]
}

// Capacity returns the pool's fixed element capacity.
func (p *Pool) Capacity() int {
	return p.capacity
}

// ElementSize returns the (possibly cache-line-rounded) per-element size.
func (p *Pool) ElementSize() int {
	return p.elementSize
}

// Stats returns a snapshot of the pool's monotonic counters.
func (p *Pool) Stats() Stats {
	return Stats{
		TotalAllocations:   atomic.LoadUint64(&p.totalAllocations),
		TotalDeallocations: atomic.LoadUint64(&p.totalDeallocations),
		PeakUsage:          atomic.LoadUint64(&p.peakUsage),
	}
}
