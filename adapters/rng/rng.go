package rng

import (
	"context"
	"fmt"
	"math/rand"

	"goboot/domain/core"
)

// Adapter provides seeded deterministic random streams. Streams for
// different operation names are independent even under one base seed,
// so a resampling plan and any auxiliary draws never overlap.
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

// SeededStream creates a deterministic random number generator for a
// named operation. The same name and seed always yield the same stream.
func (a *Adapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCancelled, err)
	}
	return rand.New(rand.NewSource(deriveSeed(name, seed))), nil
}

// ValidateSeed replays the stream and compares the leading draws against
// recorded values. A mismatch means the stream would not reproduce a
// previously recorded run.
func (a *Adapter) ValidateSeed(ctx context.Context, name string, seed int64, expected []float64) error {
	stream, err := a.SeededStream(ctx, name, seed)
	if err != nil {
		return err
	}
	for i, want := range expected {
		got := stream.Float64()
		if got != want {
			return fmt.Errorf("%w: draw %d of stream %s yielded %v, expected %v",
				core.ErrSeedMismatch, i, name, got, want)
		}
	}
	return nil
}

// deriveSeed folds the operation name into the base seed with djb2 so
// named streams diverge.
func deriveSeed(name string, seed int64) int64 {
	var hash uint32 = 5381
	for _, c := range name {
		hash = ((hash << 5) + hash) + uint32(c)
	}
	return seed + int64(hash)
}
