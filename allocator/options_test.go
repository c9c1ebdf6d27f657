package allocator_test

import (
	"bytes"
	"strings"
	"testing"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"

	"github.com/fastalloc/fastalloc"
	"github.com/fastalloc/fastalloc/allocator"
	mock_arena "github.com/fastalloc/fastalloc/arena/mocks"
)

var errReserve = errors.New("reservation quota exceeded")

// skewReserver honors the requested alignment and nothing stricter: the
// returned base is 128-aligned plus 64, so it is 64-aligned but deliberately
// not 128-aligned.
type skewReserver struct{}

func (skewReserver) Reserve(size int, alignment uint) ([]byte, error) {
	if alignment > 64 {
		return nil, errors.Errorf("alignment %d is stricter than this reserver provides", alignment)
	}
	raw := make([]byte, size+192)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	start := int((128-base%128)%128) + 64
	return raw[start : start+size : start+size], nil
}

func (skewReserver) Release(region []byte) error { return nil }

func TestWithReserverDrivesArenaLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	region := make([]byte, 1024)
	reserver := mock_arena.NewMockReserver(ctrl)
	reserver.EXPECT().Reserve(1024, fastalloc.MaxAlign).Return(region, nil).Times(1)
	reserver.EXPECT().Release(gomock.Any()).Return(nil).Times(1)

	a, err := allocator.NewLinear(1024, allocator.WithReserver(reserver))
	require.NoError(t, err)

	p := a.Allocate(64, 8)
	require.Equal(t, &region[0], &p[0])

	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
}

func TestWithReserverFailurePropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reserver := mock_arena.NewMockReserver(ctrl)
	reserver.EXPECT().Reserve(gomock.Any(), gomock.Any()).Return(nil, errReserve).Times(1)

	_, err := allocator.NewFreeList(256, allocator.FirstFit, allocator.WithReserver(reserver))
	require.ErrorIs(t, err, errReserve)
}

func TestDebugLogAllocations(t *testing.T) {
	a, err := allocator.NewFreeList(1024, allocator.FirstFit)
	require.NoError(t, err)
	defer a.Release()

	a.Allocate(100, 8)
	a.Allocate(50, 8)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a.DebugLogAllocations(logger, nil)
	require.Equal(t, 2, strings.Count(buf.String(), "live allocation"))
	require.Contains(t, buf.String(), "offset=16")
}
