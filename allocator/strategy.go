package allocator

// Strategy selects how FreeListAllocator chooses among free blocks that can
// satisfy a request. It is fixed at construction.
type Strategy uint32

const (
	// FirstFit stops at the lowest-address block that fits. Faster, but may
	// fragment more.
	FirstFit Strategy = iota
	// BestFit scans the entire free list and selects the smallest block
	// that fits, ties broken by lowest address. Slower, reduces
	// fragmentation.
	BestFit
)

var strategyMapping = map[Strategy]string{
	FirstFit: "FirstFit",
	BestFit:  "BestFit",
}

func (s Strategy) String() string {
	return strategyMapping[s]
}
