// Package budget bounds the total number of blending goroutines across
// concurrently processed images.
package budget

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Budget is a counting semaphore sized to the usable core count.
// A nil *Budget never blocks.
type Budget struct {
	sem  *semaphore.Weighted
	size int64
}

// New creates a budget of size slots. size <= 0 uses runtime.NumCPU().
func New(size int) *Budget {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Budget{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the number of slots.
func (b *Budget) Size() int {
	if b == nil {
		return runtime.NumCPU()
	}
	return int(b.size)
}

// Acquire blocks until n slots are free or ctx is done. Requests larger
// than the budget are clamped to its size.
func (b *Budget) Acquire(ctx context.Context, n int) error {
	if b == nil {
		return ctx.Err()
	}
	return b.sem.Acquire(ctx, b.clamp(n))
}

// TryAcquire takes n slots without blocking and reports success.
func (b *Budget) TryAcquire(n int) bool {
	if b == nil {
		return true
	}
	return b.sem.TryAcquire(b.clamp(n))
}

// Release returns n slots.
func (b *Budget) Release(n int) {
	if b == nil {
		return
	}
	b.sem.Release(b.clamp(n))
}

func (b *Budget) clamp(n int) int64 {
	w := int64(n)
	if w < 1 {
		w = 1
	}
	if w > b.size {
		w = b.size
	}
	return w
}
