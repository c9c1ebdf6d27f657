package allocator

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// noCopy triggers go vet's copylocks check when an allocator is copied by
// value. Allocators exclusively own their arenas; a copy would alias the
// underlying region.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// freeNil terminates the intrusive free lists used by the single-threaded
// engines; it is an offset no block can occupy.
const freeNil = -1

// linkSize is the width of an intrusive next-offset link stored in the
// first word of a free block.
const linkSize = 8

// MetricsWriter is implemented by every allocator in this package; it
// populates a JSON object with the allocator's current state.
type MetricsWriter interface {
	MetricsJson(json jwriter.ObjectState)
}

// MetricsString renders an allocator's metrics as a JSON document.
func MetricsString(m MetricsWriter) (string, error) {
	w := jwriter.NewWriter()
	obj := w.Object()
	m.MetricsJson(obj)
	obj.End()

	if err := w.Error(); err != nil {
		return "", err
	}
	return string(w.Bytes()), nil
}

func writeArenaJson(json jwriter.ObjectState, totalBytes, unusedBytes, allocations, unusedRanges int) {
	json.Name("TotalBytes").Int(totalBytes)
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocations)
	json.Name("UnusedRanges").Int(unusedRanges)
}
