// Package arena supplies the raw memory reservations that back the fastalloc
// allocator engines. A Reserver hands out contiguous, aligned byte regions;
// an Arena is the unique-ownership handle over one such region for the
// lifetime of a single allocator.
//
// All pointer-level bookkeeping in the allocators is expressed as byte
// offsets into an Arena. The only place raw addresses appear is OffsetOf,
// which translates a slice previously produced by Slice back into its
// offset.
package arena

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/fastalloc/fastalloc"
)

// Reserver reserves and releases contiguous regions of raw memory. It is
// invoked exactly once at allocator construction and once at release.
// Implementations must return regions whose base address honors the
// requested alignment.
type Reserver interface {
	Reserve(size int, alignment uint) ([]byte, error)
	Release(region []byte) error
}

// SystemReserver is the default Reserver. It reserves regions from the Go
// heap and leaves reclamation to the garbage collector once the owning
// Arena drops its reference.
type SystemReserver struct{}

var _ Reserver = SystemReserver{}

func (SystemReserver) Reserve(size int, alignment uint) ([]byte, error) {
	if size <= 0 {
		return nil, cerrors.Newf("reservation size must be positive, not %d", size)
	}
	if err := fastalloc.CheckPow2(alignment, "alignment"); err != nil {
		return nil, err
	}

	// Over-reserve by one alignment unit so the base can always be shifted
	// onto an aligned boundary.
	raw := make([]byte, size+int(alignment))
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	shift := int((uintptr(alignment) - base%uintptr(alignment)) % uintptr(alignment))
	return raw[shift : shift+size : shift+size], nil
}

func (SystemReserver) Release(region []byte) error {
	return nil
}

// Arena is a unique-ownership handle over one reserved region. It must not
// be shared between allocators or duplicated; Release leaves the handle
// inert and is idempotent.
type Arena struct {
	reserver Reserver
	region   []byte
}

// Reserve obtains a region of the given size from reserver, aligned to
// fastalloc.MaxAlign. A nil reserver selects SystemReserver.
func Reserve(size int, reserver Reserver) (*Arena, error) {
	if reserver == nil {
		reserver = SystemReserver{}
	}

	region, err := reserver.Reserve(size, fastalloc.MaxAlign)
	if err != nil {
		return nil, cerrors.Wrapf(err, "reserving %d bytes", size)
	}

	return &Arena{
		reserver: reserver,
		region:   region,
	}, nil
}

// Size returns the capacity of the region in bytes, or 0 once released.
func (a *Arena) Size() int { return len(a.region) }

// Released reports whether the region has been handed back to the Reserver.
func (a *Arena) Released() bool { return a.region == nil }

// Bytes exposes the whole region. The caller must not retain the slice
// across Release.
func (a *Arena) Bytes() []byte { return a.region }

// Slice returns the subregion [offset, offset+size) with its capacity
// clipped so callers cannot grow into neighboring allocations.
func (a *Arena) Slice(offset, size int) []byte {
	return a.region[offset : offset+size : offset+size]
}

// AlignOffsetUp returns the smallest offset at or above offset whose address
// within this region satisfies alignment. For alignments up to the
// reservation alignment this equals fastalloc.AlignUp on the offset alone;
// for stricter alignments the region base's residue is folded in, so the
// result is address-conformant for any power of two.
func (a *Arena) AlignOffsetUp(offset int, alignment uint) int {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.region)))
	residue := int(base % uintptr(alignment))
	return fastalloc.AlignUp(offset+residue, alignment) - residue
}

// OffsetOf translates a slice produced by Slice back into its byte offset
// within the region. The raw pointer arithmetic is confined here; the
// result is unspecified for slices that do not alias this region.
func (a *Arena) OffsetOf(buf []byte) int {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.region)))
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	return int(ptr - base)
}

// Contains reports whether buf aliases this region.
func (a *Arena) Contains(buf []byte) bool {
	if a.region == nil || buf == nil {
		return false
	}
	offset := a.OffsetOf(buf)
	return offset >= 0 && offset+len(buf) <= len(a.region)
}

// Release hands the region back to the Reserver and leaves the Arena inert.
// Calling Release twice is safe; the second call is a no-op.
func (a *Arena) Release() error {
	if a.region == nil {
		return nil
	}

	region := a.region
	a.region = nil
	if err := a.reserver.Release(region); err != nil {
		return cerrors.Wrap(err, "releasing arena region")
	}
	return nil
}
