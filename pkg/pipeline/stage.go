// Package pipeline provides the stage abstraction and the shared data types
// that flow between the watermark stages.
package pipeline

import (
	"context"
)

// Stage represents one step of the per-file watermark pipeline.
// Each stage takes an input and produces an output.
type Stage[In, Out any] interface {
	// Execute runs the stage with the given input and returns the output.
	Execute(ctx context.Context, input In) (Out, error)
}

// StageFunc is a function adapter for Stage interface.
type StageFunc[In, Out any] func(ctx context.Context, input In) (Out, error)

// Execute implements Stage interface.
func (f StageFunc[In, Out]) Execute(ctx context.Context, input In) (Out, error) {
	return f(ctx, input)
}

// Chain composes two stages into one that feeds the output of first into second.
func Chain[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return StageFunc[A, C](func(ctx context.Context, in A) (C, error) {
		mid, err := first.Execute(ctx, in)
		if err != nil {
			var zero C
			return zero, err
		}
		return second.Execute(ctx, mid)
	})
}
