package fastalloc_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/fastalloc/fastalloc"
)

func TestAlignUp(t *testing.T) {
	require.Equal(t, 0, fastalloc.AlignUp(0, 16))
	require.Equal(t, 16, fastalloc.AlignUp(1, 16))
	require.Equal(t, 16, fastalloc.AlignUp(16, 16))
	require.Equal(t, 32, fastalloc.AlignUp(17, 16))
	require.Equal(t, 100, fastalloc.AlignUp(100, 1))
	require.Equal(t, 104, fastalloc.AlignUp(100, 8))
	require.Equal(t, 128, fastalloc.AlignUp(100, 64))
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, 0, fastalloc.AlignDown(0, 16))
	require.Equal(t, 0, fastalloc.AlignDown(15, 16))
	require.Equal(t, 16, fastalloc.AlignDown(16, 16))
	require.Equal(t, 16, fastalloc.AlignDown(31, 16))
	require.Equal(t, 100, fastalloc.AlignDown(100, 1))
	require.Equal(t, 96, fastalloc.AlignDown(100, 8))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, fastalloc.CheckPow2(uint(1), "alignment"))
	require.NoError(t, fastalloc.CheckPow2(uint(2), "alignment"))
	require.NoError(t, fastalloc.CheckPow2(uint(64), "alignment"))
	require.NoError(t, fastalloc.CheckPow2(4096, "capacity"))

	err := fastalloc.CheckPow2(uint(0), "alignment")
	require.Error(t, err)
	require.True(t, errors.Is(err, fastalloc.ErrPowerOfTwo))

	err = fastalloc.CheckPow2(uint(24), "alignment")
	require.Error(t, err)
	require.True(t, errors.Is(err, fastalloc.ErrPowerOfTwo))
}
