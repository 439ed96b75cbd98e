package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// runBatched calls fn for every item in concurrent batches of size, pausing
// delay between batches. Item errors are collected, never short-circuited.
// The context is checked before each batch; in-flight calls are not aborted.
// onBatch, when set, is called with the number of items processed so far.
func runBatched[T any](ctx context.Context, items []T, size int, delay time.Duration,
	fn func(ctx context.Context, item T) error, onBatch func(done int),
) ([]error, error) {
	if size <= 0 {
		size = 1
	}
	errs := make([]error, len(items))
	// Items keep running after cancellation; only new batches are refused.
	itemCtx := context.WithoutCancel(ctx)

	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return errs, err
		}
		if start > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return errs, ctx.Err()
			case <-time.After(delay):
			}
		}

		end := min(start+size, len(items))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("panic: %v", r)
					}
					errs[i] = err
				}()
				return fn(itemCtx, items[i])
			})
		}
		// Errors are recorded per item; Wait only joins.
		_ = g.Wait()

		if onBatch != nil {
			onBatch(end)
		}
	}
	return errs, nil
}
