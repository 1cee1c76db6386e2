// Package concurrent holds small fan-out helpers built on errgroup.
package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Concurrent runs action for each element in its own goroutine and waits for
// all of them. It returns the first error encountered.
func Concurrent[T any](items []T, action func(T) error) error {
	var g errgroup.Group
	for _, item := range items {
		g.Go(func() error {
			return action(item)
		})
	}
	return g.Wait()
}

// ParallelMap applies mapFn to each element with at most workers goroutines,
// preserving order. The first error cancels ctx for the remaining calls and
// is returned with a nil result.
func ParallelMap[T any, R any](ctx context.Context, items []T, workers int, mapFn func(context.Context, T) (R, error)) ([]R, error) {
	if workers <= 0 {
		workers = 1
	}
	out := make([]R, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := mapFn(gctx, item)
			if err != nil {
				return err
			}
			out[idx] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Batch splits items into chunks of at most batchSize elements, preserving
// order. A non-positive batchSize yields a single chunk.
func Batch[T any](items []T, batchSize int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 || batchSize >= len(items) {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+batchSize-1)/batchSize)
	for idx := 0; idx < len(items); idx += batchSize {
		end := min(idx+batchSize, len(items))
		chunks = append(chunks, items[idx:end])
	}
	return chunks
}
