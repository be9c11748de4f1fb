package bootstrap

import (
	"context"
	"fmt"

	"goboot/domain/boot"
	"goboot/domain/core"
	"goboot/ports"
)

// StreamName is the RNG stream identity for resampling draws. Using one
// fixed name keeps a (seed, iterations, rows) triple reproducible across
// processes.
const StreamName = "bootstrap-resample"

// NewPlan draws the complete resampling schedule for a run: one resample
// per iteration, each holding rows indices drawn uniformly with
// replacement from [0, rows). The schedule is drawn in a single pass
// from one seeded stream before any estimator runs, so resample IDs map
// to the same index multisets no matter how execution is ordered later.
func NewPlan(ctx context.Context, rng ports.RNGPort, seed int64, iterations, rows int) ([]boot.Resample, error) {
	if iterations < 1 {
		return nil, core.NewInvalidInputError("iterations", "must be at least 1")
	}
	if rows < 1 {
		return nil, core.NewInvalidInputError("rows", "dataset has no rows to resample")
	}

	stream, err := rng.SeededStream(ctx, StreamName, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to open seeded stream: %w", err)
	}

	plan := make([]boot.Resample, iterations)
	for i := range plan {
		indices := make([]int, rows)
		for j := range indices {
			indices[j] = stream.Intn(rows)
		}
		plan[i] = boot.Resample{ID: i + 1, Indices: indices}
	}
	return plan, nil
}
