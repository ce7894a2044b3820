package claim

// Option applies a configuration option to the in-memory guard.
type Option func(*inMemoryGuard)

// WithCapacity bounds the number of concurrent claims.
// If capacity <= 0 the guard is unbounded.
func WithCapacity(capacity int) Option {
	return func(g *inMemoryGuard) {
		g.capacity = capacity
	}
}
