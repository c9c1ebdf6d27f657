package allocator

import (
	"golang.org/x/exp/slog"
)

// DebugLogAllocations writes one log line per live allocation. Intended for
// leak hunts at shutdown; the walk is O(live allocations).
func (a *FreeListAllocator) DebugLogAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int)) {
	if logFunc == nil {
		logFunc = func(log *slog.Logger, offset int, size int) {
			log.Debug("live allocation", slog.Int("offset", offset), slog.Int("size", size))
		}
	}

	_ = a.VisitAllocations(func(offset, size int) error {
		logFunc(logger, offset, size)
		return nil
	})
}
