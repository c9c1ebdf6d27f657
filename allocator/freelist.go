package allocator

import (
	"encoding/binary"
	"math"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"

	"github.com/fastalloc/fastalloc"
	"github.com/fastalloc/fastalloc/arena"
)

const (
	// headerSize is the allocation header written immediately before every
	// payload: 8 bytes of total consumed size followed by 8 bytes of
	// alignment adjustment. Recovering the header from a payload reproduces
	// the original block boundaries without external bookkeeping.
	headerSize = 16
	// freeNodeSize is the intrusive free-list node written into unused
	// arena memory: 8 bytes of block size followed by 8 bytes of next
	// offset. A region smaller than this cannot be tracked as free.
	freeNodeSize = 16
)

// FreeListAllocator serves variable-size requests from an address-ordered
// intrusive free list. Fitting blocks are split when the remainder can hold
// a free node; freed blocks are coalesced with both neighbors, so after
// every Deallocate no two free blocks are address-adjacent.
//
// Allocate and Deallocate are O(n) in the number of free blocks. Not safe
// for concurrent use.
type FreeListAllocator struct {
	noCopy noCopy

	arena    *arena.Arena
	strategy Strategy
	freeHead int
	used     int
	allocs   int

	// live maps payload offsets to requested sizes. It powers enumeration,
	// statistics, and debug double-free checks; Deallocate itself relies
	// only on the in-arena header.
	live *swiss.Map[int, int]
}

// NewFreeList reserves size bytes and initializes them as a single free
// block spanning the whole arena. The strategy is fixed for the life of
// the allocator.
func NewFreeList(size int, strategy Strategy, opts ...Option) (*FreeListAllocator, error) {
	if size <= freeNodeSize {
		return nil, errors.Wrapf(fastalloc.ErrCapacityTooSmall,
			"size is %d, the free-list node alone needs %d", size, freeNodeSize)
	}

	cfg := buildConfig(opts)
	region, err := arena.Reserve(size, cfg.reserver)
	if err != nil {
		return nil, err
	}

	a := &FreeListAllocator{
		arena:    region,
		strategy: strategy,
		freeHead: 0,
		live:     swiss.NewMap[int, int](16),
	}
	a.writeFreeNode(0, size, freeNil)
	return a, nil
}

func (a *FreeListAllocator) writeFreeNode(offset, size, next int) {
	buf := a.arena.Bytes()
	binary.LittleEndian.PutUint64(buf[offset:], uint64(size))
	binary.LittleEndian.PutUint64(buf[offset+8:], uint64(int64(next)))
}

func (a *FreeListAllocator) readFreeNode(offset int) (size, next int) {
	buf := a.arena.Bytes()
	size = int(binary.LittleEndian.Uint64(buf[offset:]))
	next = int(int64(binary.LittleEndian.Uint64(buf[offset+8:])))
	return size, next
}

func (a *FreeListAllocator) writeHeader(payload, total, adjustment int) {
	buf := a.arena.Bytes()
	binary.LittleEndian.PutUint64(buf[payload-headerSize:], uint64(total))
	binary.LittleEndian.PutUint64(buf[payload-headerSize+8:], uint64(adjustment))
}

func (a *FreeListAllocator) readHeader(payload int) (total, adjustment int) {
	buf := a.arena.Bytes()
	total = int(binary.LittleEndian.Uint64(buf[payload-headerSize:]))
	adjustment = int(binary.LittleEndian.Uint64(buf[payload-headerSize+8:]))
	return total, adjustment
}

// relink points prev's next link at next, or moves the list head when prev
// is freeNil.
func (a *FreeListAllocator) relink(prev, next int) {
	if prev == freeNil {
		a.freeHead = next
		return
	}
	size, _ := a.readFreeNode(prev)
	a.writeFreeNode(prev, size, next)
}

// alignWithHeader computes the payload position for a block starting at
// offset: the first address-conformant alignment boundary with headerSize
// bytes of room before it. The adjustment is the distance from the block
// start to the payload.
func (a *FreeListAllocator) alignWithHeader(offset int, alignment uint) (payload, adjustment int) {
	payload = a.arena.AlignOffsetUp(offset+headerSize, alignment)
	return payload, payload - offset
}

// Allocate returns size bytes aligned to alignment, or nil when no single
// free block can satisfy the request. Requests are never satisfied from
// more than one block. size must be positive and alignment a power of two;
// callers with no particular requirement can pass fastalloc.DefaultAlign.
func (a *FreeListAllocator) Allocate(size int, alignment uint) []byte {
	fastalloc.DebugAssert(!a.arena.Released(), "allocate on a released allocator")
	fastalloc.DebugAssert(size > 0, "allocation size must be positive, got %d", size)
	fastalloc.DebugCheckPow2(alignment, "alignment")
	if fastalloc.DebugEnabled {
		fastalloc.DebugValidate(a)
	}

	request := size + fastalloc.DebugMargin

	best := freeNil
	bestPrev := freeNil
	bestSize := math.MaxInt

	prev := freeNil
	for cur := a.freeHead; cur != freeNil; {
		blockSize, next := a.readFreeNode(cur)
		_, adjustment := a.alignWithHeader(cur, alignment)

		if blockSize >= request+adjustment {
			if a.strategy == FirstFit {
				best, bestPrev = cur, prev
				break
			}
			// Best fit: list order breaks size ties toward the lowest
			// address, so only a strictly smaller block wins.
			if blockSize < bestSize {
				best, bestPrev, bestSize = cur, prev, blockSize
			}
		}

		prev = cur
		cur = next
	}

	if best == freeNil {
		return nil
	}

	blockSize, next := a.readFreeNode(best)
	payload, adjustment := a.alignWithHeader(best, alignment)
	total := request + adjustment

	if blockSize-total > freeNodeSize {
		// Split: the tail becomes a new free block relinked in place of
		// the old one.
		tail := best + total
		a.writeFreeNode(tail, blockSize-total, next)
		a.relink(bestPrev, tail)
	} else {
		// The remainder cannot hold a free node; consume the entire block
		// so the trailing slack is recovered on Deallocate.
		total = blockSize
		a.relink(bestPrev, next)
	}

	a.writeHeader(payload, total, adjustment)
	fastalloc.WriteMagicValue(a.arena.Bytes(), payload+size)

	a.used += total
	a.allocs++
	a.live.Put(payload, size)

	return a.arena.Slice(payload, size)
}

// Deallocate returns a payload previously produced by Allocate. The block
// boundaries are recovered from the allocation header, the block is spliced
// into the address-ordered free list, and both neighbors are merged when
// adjacent. A nil or empty buf is safely ignored.
func (a *FreeListAllocator) Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}

	fastalloc.DebugAssert(a.allocs > 0, "deallocate on an allocator with no live allocations")
	payload := a.arena.OffsetOf(buf)
	if fastalloc.DebugEnabled {
		size, ok := a.live.Get(payload)
		fastalloc.DebugAssert(ok, "offset %d is not a live allocation of this allocator", payload)
		fastalloc.DebugAssert(fastalloc.ValidateMagicValue(a.arena.Bytes(), payload+size),
			"memory corruption detected after allocation at offset %d", payload)
	}

	total, adjustment := a.readHeader(payload)
	start := payload - adjustment

	// Find the insertion position in the address-ordered list.
	prev := freeNil
	cur := a.freeHead
	for cur != freeNil && cur < start {
		_, next := a.readFreeNode(cur)
		prev = cur
		cur = next
	}

	a.writeFreeNode(start, total, cur)
	a.relink(prev, start)

	// The list was fully coalesced before this call, so one merge on each
	// side restores the invariant. Forward first, then backward.
	if cur != freeNil && start+total == cur {
		nextSize, nextNext := a.readFreeNode(cur)
		a.writeFreeNode(start, total+nextSize, nextNext)
	}
	if prev != freeNil {
		prevSize, _ := a.readFreeNode(prev)
		if prev+prevSize == start {
			startSize, startNext := a.readFreeNode(start)
			a.writeFreeNode(prev, prevSize+startSize, startNext)
		}
	}

	a.used -= total
	a.allocs--
	a.live.Delete(payload)
	if fastalloc.DebugEnabled {
		fastalloc.DebugValidate(a)
	}
}

// Capacity returns the arena size in bytes.
func (a *FreeListAllocator) Capacity() int { return a.arena.Size() }

// Used returns the bytes consumed by live allocations, headers and
// alignment padding included.
func (a *FreeListAllocator) Used() int { return a.used }

// Available returns Capacity minus Used. A single allocation of this size
// may still fail when the free space is fragmented across blocks.
func (a *FreeListAllocator) Available() int { return a.arena.Size() - a.used }

// NumAllocations returns the count of live allocations.
func (a *FreeListAllocator) NumAllocations() int { return a.allocs }

// Strategy returns the fit strategy fixed at construction.
func (a *FreeListAllocator) Strategy() Strategy { return a.strategy }

// SumFreeSize returns the total bytes held by free blocks. O(n).
func (a *FreeListAllocator) SumFreeSize() int {
	sum := 0
	for cur := a.freeHead; cur != freeNil; {
		size, next := a.readFreeNode(cur)
		sum += size
		cur = next
	}
	return sum
}

// FreeRegionsCount returns the number of free blocks. O(n).
func (a *FreeListAllocator) FreeRegionsCount() int {
	count := 0
	for cur := a.freeHead; cur != freeNil; {
		_, next := a.readFreeNode(cur)
		count++
		cur = next
	}
	return count
}

// Release returns the arena to its reserver and leaves the allocator inert.
func (a *FreeListAllocator) Release() error {
	a.freeHead = freeNil
	a.used = 0
	a.allocs = 0
	a.live = swiss.NewMap[int, int](16)
	return a.arena.Release()
}

// VisitAllocations calls the provided callback once for every live
// allocation, in unspecified order, with the payload offset and requested
// size. Returning an error stops the walk.
func (a *FreeListAllocator) VisitAllocations(visit func(offset, size int) error) error {
	var err error
	a.live.Iter(func(offset, size int) bool {
		err = visit(offset, size)
		return err != nil
	})
	return err
}

// CheckCorruption verifies the debug markers written after every live
// payload. It only detects anything when built with the debug_fastalloc
// tag; without it the markers are not written and this always succeeds.
func (a *FreeListAllocator) CheckCorruption() error {
	return a.VisitAllocations(func(offset, size int) error {
		if !fastalloc.ValidateMagicValue(a.arena.Bytes(), offset+size) {
			return errors.Errorf("memory corruption detected after allocation at offset %d", offset)
		}
		return nil
	})
}

// Validate performs internal consistency checks: the free list must be
// ordered by address, fully coalesced, contained in the arena, and its
// total must account for every byte not in use. It should not be possible
// for this method to return an error.
func (a *FreeListAllocator) Validate() error {
	maxBlocks := a.arena.Size()/freeNodeSize + 1
	sumFree := 0
	count := 0
	prevEnd := freeNil

	for cur := a.freeHead; cur != freeNil; {
		size, next := a.readFreeNode(cur)

		if cur < 0 || cur+size > a.arena.Size() {
			return errors.Errorf("free block at offset %d with size %d escapes the arena", cur, size)
		}
		if size < freeNodeSize {
			return errors.Errorf("free block at offset %d has size %d, below the node minimum %d", cur, size, freeNodeSize)
		}
		if prevEnd != freeNil {
			if cur < prevEnd {
				return errors.Errorf("free list is not address-ordered at offset %d", cur)
			}
			if cur == prevEnd {
				return errors.Errorf("free blocks ending and starting at offset %d are not coalesced", cur)
			}
		}

		prevEnd = cur + size
		sumFree += size
		count++
		if count > maxBlocks {
			return errors.New("free list contains a cycle")
		}
		cur = next
	}

	if a.used+sumFree != a.arena.Size() {
		return errors.Errorf("used %d plus free %d does not equal capacity %d", a.used, sumFree, a.arena.Size())
	}
	if a.live.Count() != a.allocs {
		return errors.Errorf("allocation count is %d but %d live allocations are registered", a.allocs, a.live.Count())
	}
	return nil
}

// AddStatistics sums this allocator's state into stats.
func (a *FreeListAllocator) AddStatistics(stats *fastalloc.Statistics) {
	stats.ArenaCount++
	stats.ArenaBytes += a.arena.Size()
	stats.AllocationCount += a.allocs
	stats.AllocationBytes += a.used
}

// AddDetailedStatistics sums this allocator's state into stats, walking
// both the free list and the live allocations.
func (a *FreeListAllocator) AddDetailedStatistics(stats *fastalloc.DetailedStatistics) {
	stats.ArenaCount++
	stats.ArenaBytes += a.arena.Size()

	for cur := a.freeHead; cur != freeNil; {
		size, next := a.readFreeNode(cur)
		stats.AddUnusedRange(size)
		cur = next
	}

	_ = a.VisitAllocations(func(offset, size int) error {
		stats.AddAllocation(size)
		return nil
	})
}

// MetricsJson populates a json object with information about this allocator
func (a *FreeListAllocator) MetricsJson(json jwriter.ObjectState) {
	writeArenaJson(json, a.Capacity(), a.Available(), a.allocs, a.FreeRegionsCount())
	json.Name("Strategy").String(a.strategy.String())
}
