package allocator

import (
	"encoding/binary"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"

	"github.com/fastalloc/fastalloc"
	"github.com/fastalloc/fastalloc/arena"
)

// FixedPoolAllocator manages equal-size blocks threaded into an intrusive
// singly linked free list: the first word of every free block holds the
// offset of the next free block. Allocate and Deallocate are O(1) and no
// fragmentation is possible because every block is the same size.
//
// Not safe for concurrent use; see ConcurrentPoolAllocator for that.
type FixedPoolAllocator struct {
	noCopy noCopy

	arena      *arena.Arena
	blockSize  int
	blockCount int
	freeHead   int
	allocated  int
}

// NewFixedPool reserves blockSize*blockCount bytes and threads every block
// into one free list spanning the whole arena. blockSize must be at least
// the width of an intrusive link.
func NewFixedPool(blockSize, blockCount int, opts ...Option) (*FixedPoolAllocator, error) {
	if blockSize < linkSize {
		return nil, errors.Wrapf(fastalloc.ErrBlockTooSmall, "block size is %d, need at least %d", blockSize, linkSize)
	}
	if blockCount <= 0 {
		return nil, errors.Wrapf(fastalloc.ErrZeroBlockCount, "block count is %d", blockCount)
	}

	cfg := buildConfig(opts)
	region, err := arena.Reserve(blockSize*blockCount, cfg.reserver)
	if err != nil {
		return nil, err
	}

	p := &FixedPoolAllocator{
		arena:      region,
		blockSize:  blockSize,
		blockCount: blockCount,
		freeHead:   0,
	}

	for i := 0; i < blockCount; i++ {
		next := freeNil
		if i+1 < blockCount {
			next = (i + 1) * blockSize
		}
		p.writeLink(i*blockSize, next)
	}

	return p, nil
}

func (p *FixedPoolAllocator) writeLink(offset, next int) {
	binary.LittleEndian.PutUint64(p.arena.Bytes()[offset:], uint64(int64(next)))
}

func (p *FixedPoolAllocator) readLink(offset int) int {
	return int(int64(binary.LittleEndian.Uint64(p.arena.Bytes()[offset:])))
}

// Allocate pops the free-list head and returns it as a slice of BlockSize
// bytes, or nil when the pool is exhausted. The block's previous contents
// are undefined.
func (p *FixedPoolAllocator) Allocate() []byte {
	fastalloc.DebugAssert(!p.arena.Released(), "allocate on a released allocator")

	if p.freeHead == freeNil {
		return nil
	}

	offset := p.freeHead
	p.freeHead = p.readLink(offset)
	p.allocated++
	return p.arena.Slice(offset, p.blockSize)
}

// Deallocate pushes a block back onto the free list. buf must be a slice
// previously returned by Allocate on this pool and must not already be
// free; violations are checked only in debug builds. A nil or empty buf is
// safely ignored.
func (p *FixedPoolAllocator) Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}

	offset := p.arena.OffsetOf(buf)
	fastalloc.DebugAssert(offset >= 0 && offset < p.arena.Size() && offset%p.blockSize == 0,
		"block at offset %d does not belong to this pool", offset)
	fastalloc.DebugAssert(p.allocated > 0, "deallocate on an empty pool")
	if fastalloc.DebugEnabled {
		fastalloc.DebugAssert(!p.onFreeList(offset), "double free of block at offset %d", offset)
	}

	p.writeLink(offset, p.freeHead)
	p.freeHead = offset
	p.allocated--
}

func (p *FixedPoolAllocator) onFreeList(offset int) bool {
	for cur := p.freeHead; cur != freeNil; cur = p.readLink(cur) {
		if cur == offset {
			return true
		}
	}
	return false
}

// BlockSize returns the size of each block in bytes.
func (p *FixedPoolAllocator) BlockSize() int { return p.blockSize }

// Capacity returns the total number of blocks.
func (p *FixedPoolAllocator) Capacity() int { return p.blockCount }

// Allocated returns the number of blocks currently live.
func (p *FixedPoolAllocator) Allocated() int { return p.allocated }

// IsFull reports whether every block is live, making the next Allocate
// return nil.
func (p *FixedPoolAllocator) IsFull() bool { return p.allocated >= p.blockCount }

// Release returns the arena to its reserver and leaves the pool inert.
func (p *FixedPoolAllocator) Release() error {
	p.freeHead = freeNil
	p.allocated = 0
	return p.arena.Release()
}

// Validate performs internal consistency checks on the free list. It should
// not be possible for this method to return an error.
func (p *FixedPoolAllocator) Validate() error {
	seen := make(map[int]struct{}, p.blockCount-p.allocated)
	count := 0
	for cur := p.freeHead; cur != freeNil; cur = p.readLink(cur) {
		if cur < 0 || cur >= p.arena.Size() || cur%p.blockSize != 0 {
			return errors.Errorf("free list holds offset %d, which is not a block boundary", cur)
		}
		if _, dup := seen[cur]; dup {
			return errors.Errorf("block at offset %d appears in the free list twice", cur)
		}
		seen[cur] = struct{}{}
		count++
	}

	if count != p.blockCount-p.allocated {
		return errors.Errorf("%d blocks are free but %d of %d are unallocated", count, p.blockCount-p.allocated, p.blockCount)
	}
	return nil
}

// AddStatistics sums this pool's state into stats.
func (p *FixedPoolAllocator) AddStatistics(stats *fastalloc.Statistics) {
	stats.ArenaCount++
	stats.ArenaBytes += p.arena.Size()
	stats.AllocationCount += p.allocated
	stats.AllocationBytes += p.allocated * p.blockSize
}

// AddDetailedStatistics sums this pool's state into stats. Every block,
// live or free, is one range of BlockSize bytes.
func (p *FixedPoolAllocator) AddDetailedStatistics(stats *fastalloc.DetailedStatistics) {
	stats.ArenaCount++
	stats.ArenaBytes += p.arena.Size()
	for i := 0; i < p.allocated; i++ {
		stats.AddAllocation(p.blockSize)
	}
	for i := p.allocated; i < p.blockCount; i++ {
		stats.AddUnusedRange(p.blockSize)
	}
}

// MetricsJson populates a json object with information about this pool
func (p *FixedPoolAllocator) MetricsJson(json jwriter.ObjectState) {
	free := p.blockCount - p.allocated
	writeArenaJson(json, p.arena.Size(), free*p.blockSize, p.allocated, free)
	json.Name("BlockSize").Int(p.blockSize)
	json.Name("BlockCount").Int(p.blockCount)
}
