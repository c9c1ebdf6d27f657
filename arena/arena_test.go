package arena_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fastalloc/fastalloc"
	"github.com/fastalloc/fastalloc/arena"
	mock_arena "github.com/fastalloc/fastalloc/arena/mocks"
)

func TestSystemReserverAlignment(t *testing.T) {
	region, err := arena.SystemReserver{}.Reserve(4096, fastalloc.MaxAlign)
	require.NoError(t, err)
	require.Len(t, region, 4096)

	base := uintptr(unsafe.Pointer(unsafe.SliceData(region)))
	require.Zero(t, base%uintptr(fastalloc.MaxAlign))
}

func TestSystemReserverRejectsBadArguments(t *testing.T) {
	_, err := arena.SystemReserver{}.Reserve(0, fastalloc.MaxAlign)
	require.Error(t, err)

	_, err = arena.SystemReserver{}.Reserve(-5, fastalloc.MaxAlign)
	require.Error(t, err)

	_, err = arena.SystemReserver{}.Reserve(64, 24)
	require.Error(t, err)
}

func TestArenaOffsetRoundTrip(t *testing.T) {
	a, err := arena.Reserve(1024, nil)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, a.Release())
	}()

	require.Equal(t, 1024, a.Size())
	require.False(t, a.Released())

	buf := a.Slice(128, 16)
	require.Len(t, buf, 16)
	require.Equal(t, 16, cap(buf))
	require.Equal(t, 128, a.OffsetOf(buf))
	require.True(t, a.Contains(buf))

	head := a.Slice(0, 64)
	require.Equal(t, 0, a.OffsetOf(head))

	foreign := make([]byte, 16)
	require.False(t, a.Contains(foreign))
}

func TestArenaAlignOffsetUp(t *testing.T) {
	a, err := arena.Reserve(1024, nil)
	require.NoError(t, err)
	defer a.Release()

	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.Bytes())))
	for _, alignment := range []uint{1, 8, 64, 128, 256} {
		offset := a.AlignOffsetUp(33, alignment)
		require.GreaterOrEqual(t, offset, 33)
		require.Less(t, offset, 33+int(alignment))
		require.Zero(t, (base+uintptr(offset))%uintptr(alignment))
	}
}

func TestArenaReleaseIsIdempotent(t *testing.T) {
	a, err := arena.Reserve(256, nil)
	require.NoError(t, err)

	require.NoError(t, a.Release())
	require.True(t, a.Released())
	require.Zero(t, a.Size())

	require.NoError(t, a.Release())
}

func TestArenaReservesAndReleasesExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	region := make([]byte, 512)
	reserver := mock_arena.NewMockReserver(ctrl)
	reserver.EXPECT().Reserve(512, fastalloc.MaxAlign).Return(region, nil).Times(1)
	reserver.EXPECT().Release(gomock.Any()).Return(nil).Times(1)

	a, err := arena.Reserve(512, reserver)
	require.NoError(t, err)
	require.Equal(t, 512, a.Size())

	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
}
