package bootstrap

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/semaphore"

	"goboot/domain/boot"
	"goboot/domain/core"
	"goboot/domain/dataset"
	"goboot/ports"
)

// runPool executes the plan with a bounded worker pool. One goroutine is
// spawned per resample; a weighted semaphore caps how many run at once.
// Replicates are collected as workers finish and reassembled in resample
// ID order, so a completed concurrent run carries exactly the replicates
// a sequential run of the same plan would. Progress is reported from the
// single collector loop, never from workers.
func (e *Engine) runPool(ctx context.Context, ds *dataset.Dataset, est ports.Estimator, plan []boot.Resample, opts Options) ([]boot.Replicate, error) {
	workers := int64(opts.Workers)
	if workers > int64(len(plan)) {
		workers = int64(len(plan))
	}
	sem := semaphore.NewWeighted(workers)

	type outcome struct {
		rep boot.Replicate
		err error
	}
	results := make(chan outcome, len(plan))

	for _, rs := range plan {
		go func(rs boot.Resample) {
			// Acquire fails only when the run context ends while this
			// resample waits for a worker slot.
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- outcome{err: fmt.Errorf("%w: %v", core.ErrCancelled, err)}
				return
			}
			defer sem.Release(1)
			rep, err := e.execute(ctx, ds, est, rs, opts.Timeout)
			results <- outcome{rep: rep, err: err}
		}(rs)
	}

	collected := make([]boot.Replicate, 0, len(plan))
	var hard error
	for i := 0; i < len(plan); i++ {
		out := <-results
		if out.err != nil {
			if core.IsCancelled(out.err) {
				// The invocation never finalized; it is simply absent
				// from the partial set.
				continue
			}
			if hard == nil {
				hard = out.err
			}
			continue
		}
		collected = append(collected, out.rep)
		notify(opts, len(collected), len(plan))
	}
	if hard != nil {
		return nil, fmt.Errorf("bootstrap pool failed: %w", hard)
	}

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].Resample < collected[j].Resample
	})
	return collected, nil
}
