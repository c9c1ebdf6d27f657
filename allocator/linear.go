package allocator

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"

	"github.com/fastalloc/fastalloc"
	"github.com/fastalloc/fastalloc/arena"
)

// Marker is an opaque snapshot of a LinearAllocator's cursor, captured with
// Marker and consumed by ResetTo. It is valid only for the allocator that
// produced it and only while that allocator's arena is alive.
type Marker struct {
	owner  *LinearAllocator
	offset int
	allocs int
}

// LinearAllocator hands out memory by bumping a cursor through its arena.
// Allocation is O(1) and carries no per-allocation overhead, but individual
// allocations cannot be returned: lifetime is strictly LIFO, released by
// rewinding to a Marker or resetting the whole arena.
type LinearAllocator struct {
	noCopy noCopy

	arena  *arena.Arena
	cursor int
	allocs int
}

// NewLinear reserves capacity bytes and returns an allocator whose cursor
// starts at the arena base.
func NewLinear(capacity int, opts ...Option) (*LinearAllocator, error) {
	if capacity <= 0 {
		return nil, errors.Wrapf(fastalloc.ErrCapacityTooSmall, "capacity is %d", capacity)
	}

	cfg := buildConfig(opts)
	region, err := arena.Reserve(capacity, cfg.reserver)
	if err != nil {
		return nil, err
	}

	return &LinearAllocator{arena: region}, nil
}

// Allocate returns size bytes aligned to alignment, or nil when the
// remaining space cannot fit the request. alignment must be a power of two;
// callers with no particular requirement can pass fastalloc.DefaultAlign.
// A size of 0 is permitted and returns a valid empty slice without
// advancing usage beyond the alignment padding.
func (a *LinearAllocator) Allocate(size int, alignment uint) []byte {
	fastalloc.DebugAssert(!a.arena.Released(), "allocate on a released allocator")
	fastalloc.DebugAssert(size >= 0, "allocation size must not be negative, got %d", size)
	fastalloc.DebugCheckPow2(alignment, "alignment")

	aligned := a.arena.AlignOffsetUp(a.cursor, alignment)
	if aligned+size > a.arena.Size() {
		return nil
	}

	a.cursor = aligned + size
	a.allocs++
	return a.arena.Slice(aligned, size)
}

// Marker captures the current cursor so a later ResetTo can rewind every
// allocation made after this point.
func (a *LinearAllocator) Marker() Marker {
	return Marker{owner: a, offset: a.cursor, allocs: a.allocs}
}

// ResetTo rewinds the cursor to a previously captured Marker. The marker
// must come from this allocator; anything else is a caller error checked in
// debug builds.
func (a *LinearAllocator) ResetTo(m Marker) {
	fastalloc.DebugAssert(m.owner == a, "marker belongs to a different allocator")
	fastalloc.DebugAssert(m.offset >= 0 && m.offset <= a.arena.Size(),
		"marker offset %d is outside [0, %d]", m.offset, a.arena.Size())

	a.cursor = m.offset
	a.allocs = m.allocs
}

// Reset rewinds the cursor to the arena base, invalidating every
// outstanding allocation and marker.
func (a *LinearAllocator) Reset() {
	a.cursor = 0
	a.allocs = 0
}

// Used returns the number of bytes consumed, alignment padding included.
func (a *LinearAllocator) Used() int { return a.cursor }

// Capacity returns the arena size in bytes.
func (a *LinearAllocator) Capacity() int { return a.arena.Size() }

// Available returns the bytes remaining before exhaustion, ignoring any
// padding a future aligned request would add.
func (a *LinearAllocator) Available() int { return a.arena.Size() - a.cursor }

// NumAllocations returns the count of live allocations, restored exactly by
// ResetTo.
func (a *LinearAllocator) NumAllocations() int { return a.allocs }

// Release returns the arena to its reserver and leaves the allocator inert.
func (a *LinearAllocator) Release() error {
	a.cursor = 0
	a.allocs = 0
	return a.arena.Release()
}

// Validate performs internal consistency checks. It should not be possible
// for this method to return an error.
func (a *LinearAllocator) Validate() error {
	if a.cursor < 0 || a.cursor > a.arena.Size() {
		return errors.Errorf("cursor %d is outside [0, %d]", a.cursor, a.arena.Size())
	}
	if a.allocs < 0 {
		return errors.Errorf("allocation count %d is negative", a.allocs)
	}
	if a.allocs == 0 && a.cursor != 0 {
		return errors.Errorf("no live allocations but %d bytes are in use", a.cursor)
	}
	return nil
}

// AddStatistics sums this allocator's state into stats.
func (a *LinearAllocator) AddStatistics(stats *fastalloc.Statistics) {
	stats.ArenaCount++
	stats.ArenaBytes += a.Capacity()
	stats.AllocationCount += a.allocs
	stats.AllocationBytes += a.cursor
}

// AddDetailedStatistics sums this allocator's state into stats. Bump
// allocations are not individually enumerable, so the used prefix is
// reported as a single allocated range.
func (a *LinearAllocator) AddDetailedStatistics(stats *fastalloc.DetailedStatistics) {
	stats.ArenaCount++
	stats.ArenaBytes += a.Capacity()
	if a.cursor > 0 {
		stats.AddAllocation(a.cursor)
		// AddAllocation counted the range, not the individual bumps.
		stats.AllocationCount += a.allocs - 1
	}
	if a.Available() > 0 {
		stats.AddUnusedRange(a.Available())
	}
}

// MetricsJson populates a json object with information about this allocator
func (a *LinearAllocator) MetricsJson(json jwriter.ObjectState) {
	unusedRanges := 0
	if a.Available() > 0 {
		unusedRanges = 1
	}
	writeArenaJson(json, a.Capacity(), a.Available(), a.allocs, unusedRanges)
	json.Name("Cursor").Int(a.cursor)
}
