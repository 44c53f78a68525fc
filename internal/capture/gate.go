package capture

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultGateLimit caps concurrently outstanding variable fetches across the
// whole walk. A per-depth-level pool would let the effective limit multiply
// across recursion levels; a single shared gate caps the total regardless of
// tree shape.
const DefaultGateLimit = 20

// Gate is the admission-control primitive shared by every node of one graph
// walk. At most limit tasks run at once; blocked callers are admitted in
// FIFO order as slots free up. One Gate is constructed per capture
// invocation and injected into the walker.
type Gate struct {
	sem   *semaphore.Weighted
	limit int
}

// NewGate creates a gate admitting at most limit concurrent tasks.
func NewGate(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultGateLimit
	}
	return &Gate{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Limit returns the configured admission limit.
func (g *Gate) Limit() int { return g.limit }

// Run admits task once a slot is free, runs it, and releases the slot when
// it returns (success or failure). Returns ctx's error if cancellation wins
// the wait; the task's error otherwise.
func (g *Gate) Run(ctx context.Context, task func() error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return task()
}
