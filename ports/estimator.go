package ports

import (
	"goboot/domain/dataset"
)

// Estimator computes one or more named statistics from a dataset. The
// engine invokes Estimate exactly once per resample, against the
// materialized resample, never against the source rows.
//
// An estimator that cannot produce a value returns an error; the engine
// absorbs it as a missing replicate and the run continues. Estimators
// must not retain or mutate the dataset they are handed.
type Estimator interface {
	// Name identifies the estimator in run records and reports.
	Name() string

	// Outputs lists the named values Estimate produces, in order.
	// The list is fixed for the lifetime of the estimator.
	Outputs() []string

	// Estimate computes the outputs for one materialized resample.
	// The returned slice aligns with Outputs().
	Estimate(ds *dataset.Dataset) ([]float64, error)
}

// SeriesFunc lifts a single-column statistic into an Estimator. The
// function receives the resampled values of one numeric column.
type SeriesFunc struct {
	ID     string
	Output string
	Column string
	Fn     func(values []float64) (float64, error)
}

// Name identifies the lifted estimator.
func (s SeriesFunc) Name() string { return s.ID }

// Outputs returns the single output name.
func (s SeriesFunc) Outputs() []string { return []string{s.Output} }

// Estimate extracts the column and applies the wrapped function.
func (s SeriesFunc) Estimate(ds *dataset.Dataset) ([]float64, error) {
	values, err := ds.NumericColumn(s.Column)
	if err != nil {
		return nil, err
	}
	v, err := s.Fn(values)
	if err != nil {
		return nil, err
	}
	return []float64{v}, nil
}
