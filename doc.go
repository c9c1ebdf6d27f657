// Package fastalloc provides the shared vocabulary for a family of
// fixed-capacity memory allocators: alignment arithmetic, allocation
// statistics, sentinel errors, and debug-build validation helpers.
//
// The allocator engines themselves live in the allocator subpackage; the
// raw memory reservations backing them live in the arena subpackage.
package fastalloc
