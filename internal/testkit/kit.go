package testkit

import (
	"context"
	"fmt"
	"math/rand"

	"goboot/adapters/memory"
	"goboot/domain/core"
	"goboot/domain/dataset"
)

// Kit bundles in-memory fakes for service and transport tests.
type Kit struct {
	Ledger *memory.RunLedger
	RNG    *RNGAdapter
}

// NewKit creates a test kit instance.
func NewKit() *Kit {
	return &Kit{
		Ledger: memory.NewRunLedger(),
		RNG:    &RNGAdapter{},
	}
}

// Reader returns a dataset reader that always yields ds.
func (k *Kit) Reader(ds *dataset.Dataset) *StaticReader {
	return &StaticReader{Dataset: ds}
}

// RNGAdapter implements the RNGPort interface for testing. Unlike the
// production adapter it ignores the stream name, so tests can predict
// draws with a bare rand.NewSource.
type RNGAdapter struct{}

// SeededStream creates a deterministic random number generator for a named operation
func (r *RNGAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(seed)), nil
}

// ValidateSeed replays the stream and compares the leading draws.
func (r *RNGAdapter) ValidateSeed(ctx context.Context, name string, seed int64, expected []float64) error {
	stream := rand.New(rand.NewSource(seed))
	for i, want := range expected {
		if got := stream.Float64(); got != want {
			return fmt.Errorf("%w: draw %d yielded %v, expected %v", core.ErrSeedMismatch, i, got, want)
		}
	}
	return nil
}

// StaticReader implements DatasetReaderPort over a fixed dataset.
type StaticReader struct {
	Dataset    *dataset.Dataset
	Err        error
	LastSource string
}

func (s *StaticReader) Read(ctx context.Context, source string) (*dataset.Dataset, error) {
	s.LastSource = source
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Dataset == nil {
		return nil, fmt.Errorf("%w: data file %s", core.ErrNotFound, source)
	}
	return s.Dataset, nil
}

func (s *StaticReader) Extensions() []string {
	return []string{".xlsx", ".csv"}
}

// SeverityDataset returns the small severity sample used across the
// test suite: 8 observations with mean 5.0.
func SeverityDataset() *dataset.Dataset {
	ds, err := dataset.New(
		dataset.NumericColumn("severity_score", []float64{2, 4, 4, 4, 5, 5, 7, 9}),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build severity dataset: %v", err))
	}
	return ds
}

// LinearDataset returns n rows of exact linear data y = icept + slope*x.
func LinearDataset(n int, icept, slope float64) *dataset.Dataset {
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i)
		y[i] = icept + slope*x[i]
	}
	ds, err := dataset.New(
		dataset.NumericColumn("x", x),
		dataset.NumericColumn("y", y),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build linear dataset: %v", err))
	}
	return ds
}

// GroupedDataset returns a balanced one-way design: 3 raters scoring 3
// subjects each, with strong between-group separation.
func GroupedDataset() *dataset.Dataset {
	ds, err := dataset.New(
		dataset.NumericColumn("rating", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}),
		dataset.CategoricalColumn("rater", []string{"a", "a", "a", "b", "b", "b", "c", "c", "c"}),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build grouped dataset: %v", err))
	}
	return ds
}
