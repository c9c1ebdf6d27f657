package fastalloc

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// MaxAlign is the strictest alignment guaranteed for the base of every reserved
// region. Offsets within a region that are aligned to a power of two no greater
// than MaxAlign therefore correspond to addresses with that same alignment.
const MaxAlign uint = 64

// DefaultAlign is a reasonable alignment for callers that have no specific
// requirement. It matches the strictest alignment of ordinary scalar types.
const DefaultAlign uint = 16

func CheckPow2[T constraints.Integer](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(ErrPowerOfTwo, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a
// power of two.
func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// AlignDown rounds value down to the previous multiple of alignment, which
// must be a power of two.
func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}
