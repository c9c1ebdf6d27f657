package allocator

import "github.com/fastalloc/fastalloc/arena"

type config struct {
	reserver arena.Reserver
}

// Option adjusts allocator construction.
type Option func(*config)

// WithReserver substitutes the memory-reservation facility used to obtain
// the allocator's arena. The default reserves from the Go heap.
func WithReserver(r arena.Reserver) Option {
	return func(c *config) {
		c.reserver = r
	}
}

func buildConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
