package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"goboot/domain/boot"
	"goboot/domain/core"
	"goboot/domain/dataset"
	"goboot/internal"
	"goboot/ports"
)

// Engine executes bootstrap runs: it draws the resampling plan once,
// then applies an estimator to every materialized resample to assemble
// the replicate set. Estimator failures and timeouts become missing
// replicates; only invalid inputs or run cancellation interrupt a run.
type Engine struct {
	rng    ports.RNGPort
	logger *internal.Logger
}

// NewEngine creates an engine over the given RNG source.
func NewEngine(rng ports.RNGPort) *Engine {
	return &Engine{
		rng:    rng,
		logger: internal.DefaultLogger,
	}
}

// Options configures a single run. Zero values mean: sequential
// execution, no per-invocation timeout, no progress reporting.
type Options struct {
	Iterations int
	Seed       int64

	// RunID, when set, names the resulting replicate set. Callers that
	// hand out the ID before the run finishes (async submission) assign
	// it here; empty draws a fresh ID at completion.
	RunID core.RunID

	// Workers above 1 enables concurrent estimator invocation. The
	// resampling plan is identical either way; only execution order
	// changes.
	Workers int

	// Timeout bounds each estimator invocation. An invocation that
	// exceeds it becomes a missing replicate of class timeout.
	Timeout time.Duration

	// OnProgress, when set, is called after each finalized replicate.
	// Calls are serialized.
	OnProgress boot.ProgressFunc

	// Tracker, when set, is incremented once per finalized replicate
	// so callers can poll progress without a callback.
	Tracker *boot.Tracker
}

// Run executes one bootstrap run against the dataset's rows. The
// returned set is complete unless ctx is cancelled mid-run, in which
// case it holds the replicates finalized so far and Partial is true.
func (e *Engine) Run(ctx context.Context, ds *dataset.Dataset, est ports.Estimator, opts Options) (*boot.ReplicateSet, error) {
	if ds == nil {
		return nil, core.NewInvalidInputError("dataset", "must not be nil")
	}
	if est == nil {
		return nil, core.NewInvalidInputError("estimator", "must not be nil")
	}
	outputs := est.Outputs()
	if len(outputs) == 0 {
		return nil, core.NewInvalidInputError("estimator", "declares no outputs")
	}

	plan, err := NewPlan(ctx, e.rng, opts.Seed, opts.Iterations, ds.Rows())
	if err != nil {
		return nil, err
	}
	if opts.Tracker != nil {
		opts.Tracker.SetTotal(opts.Iterations)
	}

	e.logger.Info("bootstrap run starting: estimator=%s iterations=%d rows=%d workers=%d",
		est.Name(), opts.Iterations, ds.Rows(), opts.Workers)
	started := time.Now()

	var replicates []boot.Replicate
	if opts.Workers > 1 {
		replicates, err = e.runPool(ctx, ds, est, plan, opts)
	} else {
		replicates, err = e.runSequential(ctx, ds, est, plan, opts)
	}
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = core.NewRunID()
	}

	partial := len(replicates) < len(plan)
	set := &boot.ReplicateSet{
		RunID:       runID,
		Estimator:   est.Name(),
		Outputs:     append([]string(nil), outputs...),
		Requested:   opts.Iterations,
		Seed:        opts.Seed,
		Replicates:  replicates,
		Partial:     partial,
		Fingerprint: core.ComputeRunFingerprint(ds.Fingerprint(), est.Name(), opts.Iterations, opts.Seed),
		CreatedAt:   core.Now(),
	}

	if partial {
		e.logger.Warn("bootstrap run cancelled after %d of %d iterations", len(replicates), opts.Iterations)
	} else {
		e.logger.Info("bootstrap run completed: %d replicates (%d usable) in %v",
			set.Completed(), set.Usable(), time.Since(started))
	}
	return set, nil
}

// runSequential walks the plan in resample ID order.
func (e *Engine) runSequential(ctx context.Context, ds *dataset.Dataset, est ports.Estimator, plan []boot.Resample, opts Options) ([]boot.Replicate, error) {
	replicates := make([]boot.Replicate, 0, len(plan))
	for _, rs := range plan {
		rep, err := e.execute(ctx, ds, est, rs, opts.Timeout)
		if err != nil {
			if core.IsCancelled(err) {
				break
			}
			return nil, err
		}
		replicates = append(replicates, rep)
		notify(opts, len(replicates), len(plan))
	}
	return replicates, nil
}

// execute materializes one resample and applies the estimator to it.
// Estimator errors, timeouts, panics, value arity mismatches, and NaN
// outputs are absorbed as a missing replicate. Only cancellation or an
// unmaterializable plan propagate.
func (e *Engine) execute(ctx context.Context, ds *dataset.Dataset, est ports.Estimator, rs boot.Resample, timeout time.Duration) (boot.Replicate, error) {
	if err := ctx.Err(); err != nil {
		return boot.Replicate{}, fmt.Errorf("%w: %v", core.ErrCancelled, err)
	}

	sample, err := ds.Materialize(rs.Indices)
	if err != nil {
		return boot.Replicate{}, fmt.Errorf("resample %d cannot be materialized: %w", rs.ID, err)
	}

	values, err := e.invoke(ctx, est, sample, rs.ID, timeout)
	if err != nil {
		if core.IsCancelled(err) {
			return boot.Replicate{}, err
		}
		code := boot.FailureEstimator
		if errors.Is(err, core.ErrTimeout) {
			code = boot.FailureTimeout
		}
		e.logger.Debug("resample %d absorbed as missing: %v", rs.ID, err)
		return boot.NewMissingReplicate(rs.ID, code), nil
	}

	if len(values) != len(est.Outputs()) {
		e.logger.Debug("resample %d returned %d values for %d outputs", rs.ID, len(values), len(est.Outputs()))
		return boot.NewMissingReplicate(rs.ID, boot.FailureEstimator), nil
	}
	for _, v := range values {
		if math.IsNaN(v) {
			e.logger.Debug("resample %d produced NaN", rs.ID)
			return boot.NewMissingReplicate(rs.ID, boot.FailureEstimator), nil
		}
	}
	return boot.NewReplicate(rs.ID, values), nil
}

// invoke runs one estimator call, bounding it by the per-invocation
// timeout and the run context. A panicking estimator is reported as an
// estimator failure, not a crashed run.
func (e *Engine) invoke(ctx context.Context, est ports.Estimator, sample *dataset.Dataset, resampleID int, timeout time.Duration) ([]float64, error) {
	type outcome struct {
		values []float64
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: core.NewEstimatorError(est.Name(), resampleID, fmt.Errorf("panic: %v", r))}
			}
		}()
		values, err := est.Estimate(sample)
		if err != nil {
			done <- outcome{err: core.NewEstimatorError(est.Name(), resampleID, err)}
			return
		}
		done <- outcome{values: values}
	}()

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case out := <-done:
			return out.values, out.err
		case <-timer.C:
			return nil, fmt.Errorf("%w: %s exceeded %v on resample %d", core.ErrTimeout, est.Name(), timeout, resampleID)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", core.ErrCancelled, ctx.Err())
		}
	}

	select {
	case out := <-done:
		return out.values, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", core.ErrCancelled, ctx.Err())
	}
}

// notify reports one finalized replicate to whichever progress sinks
// the caller configured.
func notify(opts Options, completed, total int) {
	if opts.Tracker != nil {
		opts.Tracker.Increment()
	}
	if opts.OnProgress != nil {
		opts.OnProgress(completed, total)
	}
}
