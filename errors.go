package fastalloc

import "github.com/pkg/errors"

// ErrPowerOfTwo is the error returned from CheckPow2 or other methods if the number being
// tested is not a power of two
var ErrPowerOfTwo error = errors.New("number must be a power of two")

// ErrCapacityTooSmall is returned from allocator constructors when the requested capacity
// cannot hold the allocator's own bookkeeping
var ErrCapacityTooSmall error = errors.New("capacity is too small to hold allocator bookkeeping")

// ErrBlockTooSmall is returned from pool constructors when the block size cannot hold an
// intrusive free-list link
var ErrBlockTooSmall error = errors.New("block size must be at least the width of a free-list link")

// ErrZeroBlockCount is returned from pool constructors when the block count is not positive
var ErrZeroBlockCount error = errors.New("block count must be greater than zero")
