package allocator

import (
	"math"
	"sync/atomic"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"

	"github.com/fastalloc/fastalloc"
	"github.com/fastalloc/fastalloc/arena"
)

// nilIndex marks an empty free list in the packed head word.
const nilIndex = math.MaxUint32

// ConcurrentPoolAllocator is the fixed-block pool contract under
// unsynchronized concurrent callers. The free list is a lock-free stack
// whose head packs a 32-bit block index with a 32-bit generation tag into
// one atomic word. The tag increments on every successful swap, so a
// compare-and-swap witness captured before a pop-push-pop cycle on another
// goroutine restores the same index can never spuriously match (the ABA
// hazard).
//
// Allocate and Deallocate are lock-free but not wait-free: an individual
// caller may retry arbitrarily under contention, but some caller always
// makes progress. The allocator must not be handed between owners while
// other goroutines may still be calling into it; no consistent snapshot of
// the head can be captured under races.
type ConcurrentPoolAllocator struct {
	noCopy noCopy

	arena      *arena.Arena
	blockSize  int
	blockCount int

	head atomic.Uint64
	// links[i] holds the index of the free block after block i. Keeping the
	// links out of the arena bytes lets pops read them atomically while a
	// racing push rewrites its own entry.
	links     []atomic.Uint32
	allocated atomic.Int64
}

func packHead(index, tag uint32) uint64 {
	return uint64(tag)<<32 | uint64(index)
}

func unpackHead(head uint64) (index, tag uint32) {
	return uint32(head), uint32(head >> 32)
}

// NewConcurrentPool reserves blockSize*blockCount bytes and threads every
// block into the lock-free free list. blockCount must fit in the 32-bit
// index half of the packed head.
func NewConcurrentPool(blockSize, blockCount int, opts ...Option) (*ConcurrentPoolAllocator, error) {
	if blockSize < linkSize {
		return nil, errors.Wrapf(fastalloc.ErrBlockTooSmall, "block size is %d, need at least %d", blockSize, linkSize)
	}
	if blockCount <= 0 {
		return nil, errors.Wrapf(fastalloc.ErrZeroBlockCount, "block count is %d", blockCount)
	}
	if blockCount >= nilIndex {
		return nil, errors.Errorf("block count %d exceeds the %d blocks addressable by the packed head", blockCount, nilIndex-1)
	}

	cfg := buildConfig(opts)
	region, err := arena.Reserve(blockSize*blockCount, cfg.reserver)
	if err != nil {
		return nil, err
	}

	p := &ConcurrentPoolAllocator{
		arena:      region,
		blockSize:  blockSize,
		blockCount: blockCount,
		links:      make([]atomic.Uint32, blockCount),
	}

	for i := 0; i < blockCount; i++ {
		next := uint32(nilIndex)
		if i+1 < blockCount {
			next = uint32(i + 1)
		}
		p.links[i].Store(next)
	}
	p.head.Store(packHead(0, 0))

	return p, nil
}

// Allocate pops a block from the free list and returns it as a slice of
// BlockSize bytes, or nil when the pool is exhausted. Safe for concurrent
// use.
func (p *ConcurrentPoolAllocator) Allocate() []byte {
	for {
		old := p.head.Load()
		index, tag := unpackHead(old)
		if index == nilIndex {
			return nil
		}

		next := p.links[index].Load()
		if p.head.CompareAndSwap(old, packHead(next, tag+1)) {
			p.allocated.Add(1)
			return p.arena.Slice(int(index)*p.blockSize, p.blockSize)
		}
	}
}

// Deallocate pushes a block back onto the free list. buf must be a slice
// previously returned by Allocate on this pool and must not already be
// free. Safe for concurrent use; a nil or empty buf is safely ignored.
func (p *ConcurrentPoolAllocator) Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}

	offset := p.arena.OffsetOf(buf)
	fastalloc.DebugAssert(offset >= 0 && offset < p.arena.Size() && offset%p.blockSize == 0,
		"block at offset %d does not belong to this pool", offset)
	index := uint32(offset / p.blockSize)

	for {
		old := p.head.Load()
		headIndex, tag := unpackHead(old)
		p.links[index].Store(headIndex)
		if p.head.CompareAndSwap(old, packHead(index, tag+1)) {
			p.allocated.Add(-1)
			return
		}
	}
}

// BlockSize returns the size of each block in bytes.
func (p *ConcurrentPoolAllocator) BlockSize() int { return p.blockSize }

// Capacity returns the total number of blocks.
func (p *ConcurrentPoolAllocator) Capacity() int { return p.blockCount }

// Allocated returns the number of blocks currently live. Under concurrent
// mutation the value is a point-in-time snapshot.
func (p *ConcurrentPoolAllocator) Allocated() int {
	return int(p.allocated.Load())
}

// IsFull reports whether every block was live at the moment of the call.
func (p *ConcurrentPoolAllocator) IsFull() bool {
	return p.Allocated() >= p.blockCount
}

// Release returns the arena to its reserver. The caller must guarantee no
// other goroutine is still using the pool.
func (p *ConcurrentPoolAllocator) Release() error {
	p.head.Store(packHead(nilIndex, 0))
	p.allocated.Store(0)
	return p.arena.Release()
}

// Validate performs internal consistency checks on the free list. It is
// only meaningful while the pool is quiescent; concurrent mutation during
// the walk produces spurious errors.
func (p *ConcurrentPoolAllocator) Validate() error {
	seen := make(map[uint32]struct{}, p.blockCount)
	count := 0

	index, _ := unpackHead(p.head.Load())
	for index != nilIndex {
		if int(index) >= p.blockCount {
			return errors.Errorf("free list holds index %d, beyond the %d blocks in the pool", index, p.blockCount)
		}
		if _, dup := seen[index]; dup {
			return errors.Errorf("block index %d appears in the free list twice", index)
		}
		seen[index] = struct{}{}
		count++
		index = p.links[index].Load()
	}

	if count != p.blockCount-p.Allocated() {
		return errors.Errorf("%d blocks are free but %d of %d are unallocated", count, p.blockCount-p.Allocated(), p.blockCount)
	}
	return nil
}

// AddStatistics sums this pool's state into stats.
func (p *ConcurrentPoolAllocator) AddStatistics(stats *fastalloc.Statistics) {
	allocated := p.Allocated()
	stats.ArenaCount++
	stats.ArenaBytes += p.arena.Size()
	stats.AllocationCount += allocated
	stats.AllocationBytes += allocated * p.blockSize
}

// MetricsJson populates a json object with information about this pool
func (p *ConcurrentPoolAllocator) MetricsJson(json jwriter.ObjectState) {
	allocated := p.Allocated()
	free := p.blockCount - allocated
	writeArenaJson(json, p.arena.Size(), free*p.blockSize, allocated, free)
	json.Name("BlockSize").Int(p.blockSize)
	json.Name("BlockCount").Int(p.blockCount)
}
