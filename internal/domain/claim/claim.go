// Package claim guards against concurrent ingestion of the same assessment.
package claim

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard tracks assessment IDs whose upload is in flight.
type Guard interface {
	// Claim records id as in flight. It fails with ErrAlreadyClaimed when id
	// is held and with ErrCapacity when the guard is full.
	Claim(ctx context.Context, id string) error

	// Release frees id. Releasing an unheld id is a no-op.
	Release(ctx context.Context, id string)

	Len() int64
}

// inMemoryGuard holds claims in a map. A capacity of 0 or less is unbounded.
type inMemoryGuard struct {
	mu       sync.Mutex
	held     map[string]struct{}
	capacity int
	size     atomic.Int64
}

// NewInMemoryGuard creates a guard with configuration options.
func NewInMemoryGuard(opts ...Option) Guard {
	g := &inMemoryGuard{
		capacity: 256,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.held = make(map[string]struct{})
	return g
}

func (g *inMemoryGuard) Claim(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[id]; ok {
		return ErrAlreadyClaimed
	}
	if g.capacity > 0 && len(g.held) >= g.capacity {
		return ErrCapacity
	}
	g.held[id] = struct{}{}
	g.size.Add(1)
	return nil
}

func (g *inMemoryGuard) Release(_ context.Context, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[id]; ok {
		delete(g.held, id)
		g.size.Add(-1)
	}
}

func (g *inMemoryGuard) Len() int64 {
	return g.size.Load()
}
