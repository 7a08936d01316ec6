package testutil

import (
	"context"

	"github.com/bitwebs/bitstream/internal/model"
)

// ReduceFunc matches the fold step of a pipeline reducer.
type ReduceFunc[S any] func(ctx context.Context, state S, entry model.Entry) (S, []byte, error)

// CountingInit wraps a reducer's Init so every call bumps c. A nil init
// yields the zero state.
func CountingInit[S any](init func() S, c *Counter) func() S {
	return func() S {
		c.Next()
		if init == nil {
			var zero S
			return zero
		}
		return init()
	}
}

// CountingReduce wraps a reducer's fold step so every call bumps c.
func CountingReduce[S any](fn ReduceFunc[S], c *Counter) ReduceFunc[S] {
	return func(ctx context.Context, state S, entry model.Entry) (S, []byte, error) {
		c.Next()
		return fn(ctx, state, entry)
	}
}
