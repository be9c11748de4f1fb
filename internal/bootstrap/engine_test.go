package bootstrap

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"goboot/domain/boot"
	"goboot/domain/core"
	"goboot/domain/dataset"
	"goboot/ports"
)

// stubRNG mirrors the production adapter: one seeded stream per call.
type stubRNG struct{}

func (stubRNG) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(seed)), nil
}

func (stubRNG) ValidateSeed(ctx context.Context, name string, seed int64, expected []float64) error {
	return nil
}

func severityDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(dataset.NumericColumn("severity_score", []float64{2, 4, 4, 4, 5, 5, 7, 9}))
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	return ds
}

func meanEstimator() ports.Estimator {
	return ports.SeriesFunc{
		ID:     "column_mean",
		Output: "mean",
		Column: "severity_score",
		Fn: func(values []float64) (float64, error) {
			sum := 0.0
			for _, v := range values {
				sum += v
			}
			return sum / float64(len(values)), nil
		},
	}
}

// flakyEstimator fails on every 10th invocation.
type flakyEstimator struct {
	calls int
}

func (f *flakyEstimator) Name() string      { return "flaky" }
func (f *flakyEstimator) Outputs() []string { return []string{"value"} }
func (f *flakyEstimator) Estimate(ds *dataset.Dataset) ([]float64, error) {
	f.calls++
	if f.calls%10 == 0 {
		return nil, fmt.Errorf("synthetic failure on call %d", f.calls)
	}
	return []float64{1.0}, nil
}

type slowEstimator struct {
	delay time.Duration
}

func (s slowEstimator) Name() string      { return "slow" }
func (s slowEstimator) Outputs() []string { return []string{"value"} }
func (s slowEstimator) Estimate(ds *dataset.Dataset) ([]float64, error) {
	time.Sleep(s.delay)
	return []float64{1.0}, nil
}

type panicEstimator struct{}

func (panicEstimator) Name() string      { return "panicky" }
func (panicEstimator) Outputs() []string { return []string{"value"} }
func (panicEstimator) Estimate(ds *dataset.Dataset) ([]float64, error) {
	panic("synthetic panic")
}

func TestNewPlanIndexRanges(t *testing.T) {
	testCases := []struct {
		iterations int
		rows       int
	}{
		{1, 1},
		{10, 8},
		{100, 3},
		{250, 50},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("n%d_r%d", tc.iterations, tc.rows), func(t *testing.T) {
			plan, err := NewPlan(context.Background(), stubRNG{}, 42, tc.iterations, tc.rows)
			if err != nil {
				t.Fatalf("NewPlan failed: %v", err)
			}
			if len(plan) != tc.iterations {
				t.Fatalf("plan has %d resamples, want %d", len(plan), tc.iterations)
			}
			for i, rs := range plan {
				if rs.ID != i+1 {
					t.Errorf("resample %d has ID %d, want %d", i, rs.ID, i+1)
				}
				if len(rs.Indices) != tc.rows {
					t.Errorf("resample %d has %d indices, want %d", rs.ID, len(rs.Indices), tc.rows)
				}
				for _, idx := range rs.Indices {
					if idx < 0 || idx >= tc.rows {
						t.Fatalf("resample %d index %d out of [0,%d)", rs.ID, idx, tc.rows)
					}
				}
			}
		})
	}
}

func TestNewPlanDeterministic(t *testing.T) {
	a, err := NewPlan(context.Background(), stubRNG{}, 42, 20, 8)
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}
	b, err := NewPlan(context.Background(), stubRNG{}, 42, 20, 8)
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}
	for i := range a {
		for j := range a[i].Indices {
			if a[i].Indices[j] != b[i].Indices[j] {
				t.Fatalf("plans diverge at resample %d index %d", a[i].ID, j)
			}
		}
	}

	c, err := NewPlan(context.Background(), stubRNG{}, 43, 20, 8)
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}
	same := true
	for i := range a {
		for j := range a[i].Indices {
			if a[i].Indices[j] != c[i].Indices[j] {
				same = false
			}
		}
	}
	if same {
		t.Error("different seeds should change the plan")
	}
}

func TestNewPlanRejectsBadInputs(t *testing.T) {
	if _, err := NewPlan(context.Background(), stubRNG{}, 42, 0, 8); !core.IsInvalidInput(err) {
		t.Errorf("zero iterations should be invalid input, got %v", err)
	}
	if _, err := NewPlan(context.Background(), stubRNG{}, 42, 10, 0); !core.IsInvalidInput(err) {
		t.Errorf("zero rows should be invalid input, got %v", err)
	}
}

func TestRunMeanRecoversSample(t *testing.T) {
	// Resampled means over [2,4,4,4,5,5,7,9] concentrate around the
	// sample mean of 5.0 with a bootstrap SE near 0.68.
	engine := NewEngine(stubRNG{})
	set, err := engine.Run(context.Background(), severityDataset(t), meanEstimator(), Options{
		Iterations: 500,
		Seed:       42,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if set.Partial {
		t.Fatal("uncancelled run should not be partial")
	}
	if set.Completed() != 500 {
		t.Fatalf("Completed() = %d, want 500", set.Completed())
	}
	if set.Usable() != 500 {
		t.Fatalf("Usable() = %d, want 500", set.Usable())
	}

	values, err := set.Series("mean")
	if err != nil {
		t.Fatalf("Series(mean) failed: %v", err)
	}
	grand := 0.0
	for _, v := range values {
		grand += v
	}
	grand /= float64(len(values))
	if math.Abs(grand-5.0) > 0.3 {
		t.Errorf("grand mean = %v, want within 0.3 of 5.0", grand)
	}

	se, err := StandardError(values)
	if err != nil {
		t.Fatalf("StandardError failed: %v", err)
	}
	if math.Abs(se-0.6) > 0.2 {
		t.Errorf("bootstrap SE = %v, want within 0.2 of 0.6", se)
	}
}

func TestRunDeterministicForSeed(t *testing.T) {
	engine := NewEngine(stubRNG{})
	opts := Options{Iterations: 50, Seed: 7}

	first, err := engine.Run(context.Background(), severityDataset(t), meanEstimator(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	second, err := engine.Run(context.Background(), severityDataset(t), meanEstimator(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if first.Fingerprint != second.Fingerprint {
		t.Errorf("fingerprints differ for identical runs: %s vs %s", first.Fingerprint, second.Fingerprint)
	}
	for i := range first.Replicates {
		if first.Replicates[i].Values[0] != second.Replicates[i].Values[0] {
			t.Fatalf("replicate %d diverges between identical runs", first.Replicates[i].Resample)
		}
	}
}

func TestRunAbsorbsEstimatorFailures(t *testing.T) {
	engine := NewEngine(stubRNG{})
	set, err := engine.Run(context.Background(), severityDataset(t), &flakyEstimator{}, Options{
		Iterations: 100,
		Seed:       42,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if set.Usable() != 90 {
		t.Errorf("Usable() = %d, want 90", set.Usable())
	}
	if set.MissingCount() != 10 {
		t.Errorf("MissingCount() = %d, want 10", set.MissingCount())
	}
	for _, rep := range set.Replicates {
		if rep.Missing && rep.Failure != boot.FailureEstimator {
			t.Errorf("replicate %d has failure class %q, want %q", rep.Resample, rep.Failure, boot.FailureEstimator)
		}
	}
}

func TestRunAbsorbsPanics(t *testing.T) {
	engine := NewEngine(stubRNG{})
	set, err := engine.Run(context.Background(), severityDataset(t), panicEstimator{}, Options{
		Iterations: 5,
		Seed:       42,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if set.MissingCount() != 5 {
		t.Errorf("MissingCount() = %d, want 5", set.MissingCount())
	}
}

func TestRunTimeoutBecomesMissing(t *testing.T) {
	engine := NewEngine(stubRNG{})
	set, err := engine.Run(context.Background(), severityDataset(t), slowEstimator{delay: 50 * time.Millisecond}, Options{
		Iterations: 3,
		Seed:       42,
		Timeout:    5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if set.Usable() != 0 {
		t.Errorf("Usable() = %d, want 0", set.Usable())
	}
	for _, rep := range set.Replicates {
		if rep.Failure != boot.FailureTimeout {
			t.Errorf("replicate %d has failure class %q, want %q", rep.Resample, rep.Failure, boot.FailureTimeout)
		}
	}
}

func TestRunCancellationYieldsPartialSet(t *testing.T) {
	engine := NewEngine(stubRNG{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	set, err := engine.Run(ctx, severityDataset(t), meanEstimator(), Options{
		Iterations: 100,
		Seed:       42,
		OnProgress: func(completed, total int) {
			if completed == 40 {
				cancel()
			}
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !set.Partial {
		t.Error("cancelled run should be partial")
	}
	if set.Completed() != 40 {
		t.Errorf("Completed() = %d, want exactly 40", set.Completed())
	}
	if err := set.Validate(); err != nil {
		t.Errorf("partial set should validate: %v", err)
	}
}

func TestRunProgressReporting(t *testing.T) {
	engine := NewEngine(stubRNG{})
	tracker := boot.NewTracker(25)

	var calls []int
	set, err := engine.Run(context.Background(), severityDataset(t), meanEstimator(), Options{
		Iterations: 25,
		Seed:       42,
		Tracker:    tracker,
		OnProgress: func(completed, total int) {
			if total != 25 {
				t.Errorf("OnProgress total = %d, want 25", total)
			}
			calls = append(calls, completed)
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if set.Completed() != 25 {
		t.Fatalf("Completed() = %d, want 25", set.Completed())
	}
	if len(calls) != 25 {
		t.Fatalf("OnProgress called %d times, want 25", len(calls))
	}
	for i, c := range calls {
		if c != i+1 {
			t.Fatalf("OnProgress call %d reported %d, want %d", i, c, i+1)
		}
	}
	if tracker.Completed() != 25 {
		t.Errorf("tracker.Completed() = %d, want 25", tracker.Completed())
	}
}

func TestRunParallelMatchesSequential(t *testing.T) {
	engine := NewEngine(stubRNG{})

	sequential, err := engine.Run(context.Background(), severityDataset(t), meanEstimator(), Options{
		Iterations: 200,
		Seed:       42,
	})
	if err != nil {
		t.Fatalf("sequential Run failed: %v", err)
	}

	parallel, err := engine.Run(context.Background(), severityDataset(t), meanEstimator(), Options{
		Iterations: 200,
		Seed:       42,
		Workers:    8,
	})
	if err != nil {
		t.Fatalf("parallel Run failed: %v", err)
	}

	if parallel.Partial {
		t.Fatal("uncancelled parallel run should not be partial")
	}
	if parallel.Completed() != sequential.Completed() {
		t.Fatalf("parallel completed %d, sequential %d", parallel.Completed(), sequential.Completed())
	}
	for i := range sequential.Replicates {
		s, p := sequential.Replicates[i], parallel.Replicates[i]
		if s.Resample != p.Resample {
			t.Fatalf("replicate order diverges at position %d: %d vs %d", i, s.Resample, p.Resample)
		}
		if s.Values[0] != p.Values[0] {
			t.Fatalf("replicate %d value diverges: %v vs %v", s.Resample, s.Values[0], p.Values[0])
		}
	}
}

func TestRunParallelCancellation(t *testing.T) {
	engine := NewEngine(stubRNG{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The estimator must outlast the collector loop, otherwise every
	// resample can finalize before the cancellation lands.
	set, err := engine.Run(ctx, severityDataset(t), slowEstimator{delay: time.Millisecond}, Options{
		Iterations: 200,
		Seed:       42,
		Workers:    4,
		OnProgress: func(completed, total int) {
			if completed == 50 {
				cancel()
			}
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !set.Partial {
		t.Error("cancelled parallel run should be partial")
	}
	if set.Completed() >= 200 {
		t.Errorf("Completed() = %d, want fewer than 200", set.Completed())
	}
	if err := set.Validate(); err != nil {
		t.Errorf("partial set should validate: %v", err)
	}
}

func TestRunRejectsBadInputs(t *testing.T) {
	engine := NewEngine(stubRNG{})
	ds := severityDataset(t)

	if _, err := engine.Run(context.Background(), nil, meanEstimator(), Options{Iterations: 10}); !core.IsInvalidInput(err) {
		t.Errorf("nil dataset should be invalid input, got %v", err)
	}
	if _, err := engine.Run(context.Background(), ds, nil, Options{Iterations: 10}); !core.IsInvalidInput(err) {
		t.Errorf("nil estimator should be invalid input, got %v", err)
	}
	if _, err := engine.Run(context.Background(), ds, meanEstimator(), Options{Iterations: 0}); !core.IsInvalidInput(err) {
		t.Errorf("zero iterations should be invalid input, got %v", err)
	}
}
