// Package allocator implements four fixed-capacity allocation engines over
// exclusively-owned arenas:
//
//   - LinearAllocator: bump-pointer allocation with marker rewind. O(1),
//     no individual free.
//   - FixedPoolAllocator: equal-size blocks threaded into an intrusive free
//     list. O(1) allocate and deallocate, no fragmentation.
//   - FreeListAllocator: variable-size blocks on an address-ordered free
//     list with splitting and coalescing, first-fit or best-fit. O(n).
//   - ConcurrentPoolAllocator: the pool contract under unsynchronized
//     concurrent callers, built on a lock-free tagged-head stack.
//
// Exhaustion is a normal outcome signaled by a nil result. Misuse such as
// double frees, foreign pointers, or non-power-of-two alignments is checked
// only when built with the debug_fastalloc tag; optimized builds trust the
// caller.
//
// Allocators are unique owners of their arenas and must not be copied by
// value; go vet's copylocks check flags accidental copies.
package allocator
