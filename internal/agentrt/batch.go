package agentrt

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchCall splits items into batches of batchSize once len(items) exceeds
// batchThreshold (otherwise everything runs as a single batch), invokes fn
// per batch over a bounded worker pool, and concatenates results in the
// original batch order (§4.6/§5: deterministic in-order merge, no result
// ever silently dropped on a single batch's failure — that batch's error is
// returned, not swallowed).
func BatchCall[T any, R any](ctx context.Context, items []T, batchThreshold, batchSize, workerPool int, fn func(ctx context.Context, batch []T) ([]R, error)) ([]R, error) {
	if batchSize <= 0 {
		batchSize = len(items)
	}
	if workerPool <= 0 {
		workerPool = 4
	}

	var batches [][]T
	if len(items) <= batchThreshold || batchSize <= 0 {
		batches = [][]T{items}
	} else {
		for start := 0; start < len(items); start += batchSize {
			end := start + batchSize
			if end > len(items) {
				end = len(items)
			}
			batches = append(batches, items[start:end])
		}
	}

	results := make([][]R, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerPool)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			out, err := fn(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []R
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}
