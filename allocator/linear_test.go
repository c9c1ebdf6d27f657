package allocator_test

import (
	"testing"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/fastalloc/fastalloc"
	"github.com/fastalloc/fastalloc/allocator"
)

func TestLinearBumpAndRewind(t *testing.T) {
	a, err := allocator.NewLinear(1024)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, a.Release())
	}()

	require.Equal(t, 1024, a.Capacity())
	require.Zero(t, a.Used())

	p1 := a.Allocate(100, fastalloc.DefaultAlign)
	require.Len(t, p1, 100)
	require.Equal(t, 100, a.Used())
	require.Equal(t, 1, a.NumAllocations())

	mark := a.Marker()

	p2 := a.Allocate(200, fastalloc.DefaultAlign)
	require.Len(t, p2, 200)
	require.Equal(t, 312, a.Used())

	p3 := a.Allocate(150, fastalloc.DefaultAlign)
	require.Len(t, p3, 150)
	require.Equal(t, 470, a.Used())
	require.Equal(t, 554, a.Available())
	require.Equal(t, 3, a.NumAllocations())

	a.ResetTo(mark)
	require.Equal(t, 100, a.Used())
	require.Equal(t, 1, a.NumAllocations())
	require.NoError(t, a.Validate())

	// The rewound space is handed out again from the marker position.
	p4 := a.Allocate(200, fastalloc.DefaultAlign)
	require.Equal(t, &p2[0], &p4[0])

	a.Reset()
	require.Zero(t, a.Used())
	require.Zero(t, a.NumAllocations())
	require.NoError(t, a.Validate())
}

func TestLinearAlignmentAndOverlap(t *testing.T) {
	a, err := allocator.NewLinear(512)
	require.NoError(t, err)
	defer a.Release()

	p1 := a.Allocate(10, 1)
	p2 := a.Allocate(10, 64)
	p3 := a.Allocate(10, 32)

	base1 := uintptr(unsafe.Pointer(unsafe.SliceData(p1)))
	base2 := uintptr(unsafe.Pointer(unsafe.SliceData(p2)))
	base3 := uintptr(unsafe.Pointer(unsafe.SliceData(p3)))

	require.Zero(t, base2%64)
	require.Zero(t, base3%32)
	require.GreaterOrEqual(t, base2, base1+10)
	require.GreaterOrEqual(t, base3, base2+10)
}

// Alignments stricter than the arena reservation must still produce
// conformant addresses, even when the region base shares no stricter
// alignment.
func TestLinearAlignmentBeyondReservation(t *testing.T) {
	a, err := allocator.NewLinear(1024, allocator.WithReserver(skewReserver{}))
	require.NoError(t, err)
	defer a.Release()

	for _, alignment := range []uint{128, 256} {
		p := a.Allocate(8, alignment)
		require.NotNil(t, p)
		base := uintptr(unsafe.Pointer(unsafe.SliceData(p)))
		require.Zero(t, base%uintptr(alignment))
	}
	require.NoError(t, a.Validate())
}

func TestLinearZeroSize(t *testing.T) {
	a, err := allocator.NewLinear(64)
	require.NoError(t, err)
	defer a.Release()

	p := a.Allocate(0, 16)
	require.NotNil(t, p)
	require.Empty(t, p)
	require.Equal(t, 1, a.NumAllocations())
	require.Zero(t, a.Used())
}

func TestLinearExhaustion(t *testing.T) {
	a, err := allocator.NewLinear(128)
	require.NoError(t, err)
	defer a.Release()

	require.NotNil(t, a.Allocate(100, 1))
	require.Nil(t, a.Allocate(29, 1))
	// The failed request leaves usage untouched.
	require.Equal(t, 100, a.Used())
	require.Equal(t, 1, a.NumAllocations())

	require.NotNil(t, a.Allocate(28, 1))
	require.Zero(t, a.Available())
	require.Nil(t, a.Allocate(1, 1))
}

func TestLinearRejectsBadCapacity(t *testing.T) {
	_, err := allocator.NewLinear(0)
	require.Error(t, err)
	require.True(t, cerrors.Is(err, fastalloc.ErrCapacityTooSmall))

	_, err = allocator.NewLinear(-10)
	require.True(t, cerrors.Is(err, fastalloc.ErrCapacityTooSmall))
}

func TestLinearStatistics(t *testing.T) {
	a, err := allocator.NewLinear(1024)
	require.NoError(t, err)
	defer a.Release()

	a.Allocate(100, 16)
	a.Allocate(200, 16)

	var stats fastalloc.Statistics
	a.AddStatistics(&stats)
	require.Equal(t, fastalloc.Statistics{
		ArenaCount:      1,
		AllocationCount: 2,
		ArenaBytes:      1024,
		AllocationBytes: 312,
	}, stats)

	var detailed fastalloc.DetailedStatistics
	detailed.Clear()
	a.AddDetailedStatistics(&detailed)
	require.Equal(t, 1, detailed.ArenaCount)
	require.Equal(t, 2, detailed.AllocationCount)
	require.Equal(t, 1, detailed.UnusedRangeCount)
	require.Equal(t, 712, detailed.UnusedRangeSizeMin)
	require.Equal(t, 312, detailed.AllocationSizeMax)
}
