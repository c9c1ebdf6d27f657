//go:build debug_fastalloc

package fastalloc

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/constraints"
)

const (
	// DebugEnabled reports whether the debug_fastalloc build tag is present.
	// Expensive caller-side checks should be wrapped in `if DebugEnabled`
	// so they compile away in optimized builds.
	DebugEnabled = true
	// DebugMargin is the number of bytes of debug data that should be placed after
	// allocations in regions managed by fastalloc
	DebugMargin int = 16
	// corruptionDetectionMagicValue is a 4-byte pattern that should be copied into debug
	// data placed after allocations in regions managed by fastalloc
	corruptionDetectionMagicValue uint32 = 0x9CC2A1D7
)

// WriteMagicValue writes an easy-to-identify marker across DebugMargin bytes at the
// provided offset into data. This method no-ops unless the debug_fastalloc build tag
// is present.
func WriteMagicValue(data []byte, offset int) {
	marginSize := DebugMargin / 4
	for i := 0; i < marginSize; i++ {
		binary.LittleEndian.PutUint32(data[offset+i*4:], corruptionDetectionMagicValue)
	}
}

// ValidateMagicValue verifies that the easy-to-identify marker written by WriteMagicValue
// is still present. It returns true if the value is still present and false otherwise.
// This method no-ops unless the debug_fastalloc build tag is present.
func ValidateMagicValue(data []byte, offset int) bool {
	marginSize := DebugMargin / 4
	for i := 0; i < marginSize; i++ {
		if binary.LittleEndian.Uint32(data[offset+i*4:]) != corruptionDetectionMagicValue {
			return false
		}
	}

	return true
}

// DebugValidate will call Validate on the provided object and panics if any errors are
// returned. This method no-ops unless the debug_fastalloc build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugAssert panics with the formatted message when the condition does not hold.
// This method no-ops unless the debug_fastalloc build tag is present.
func DebugAssert(condition bool, format string, args ...any) {
	if !condition {
		panic(fmt.Sprintf(format, args...))
	}
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and
// panics if it is not. This method no-ops unless the debug_fastalloc build tag is present.
func DebugCheckPow2[T constraints.Integer](value T, name string) {
	err := CheckPow2(value, name)
	if err != nil {
		panic(err)
	}
}
