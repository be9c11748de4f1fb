package estimators

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"goboot/domain/dataset"
)

// PearsonEstimator estimates the Pearson correlation between two numeric
// columns per resample.
type PearsonEstimator struct {
	xColumn string
	yColumn string
}

// NewPearson creates a correlation estimator over two numeric columns.
func NewPearson(xColumn, yColumn string) *PearsonEstimator {
	return &PearsonEstimator{xColumn: xColumn, yColumn: yColumn}
}

// Name identifies the estimator, column pair included.
func (p *PearsonEstimator) Name() string {
	return fmt.Sprintf("pearson(%s,%s)", p.xColumn, p.yColumn)
}

// Outputs returns the single correlation output.
func (p *PearsonEstimator) Outputs() []string {
	return []string{"r"}
}

// Estimate computes the correlation on one materialized resample. A
// resample where either column degenerates to a constant has no defined
// correlation and errors out.
func (p *PearsonEstimator) Estimate(ds *dataset.Dataset) ([]float64, error) {
	x, err := ds.NumericColumn(p.xColumn)
	if err != nil {
		return nil, err
	}
	y, err := ds.NumericColumn(p.yColumn)
	if err != nil {
		return nil, err
	}
	if isConstant(x) || isConstant(y) {
		// The stats dep reports r=0 for a constant input; undefined is
		// the honest answer, so the replicate goes missing instead.
		return nil, fmt.Errorf("correlation undefined: a column is constant on this resample")
	}

	r, err := stats.Correlation(x, y)
	if err != nil {
		return nil, fmt.Errorf("correlation undefined on this resample: %w", err)
	}
	return []float64{r}, nil
}

func isConstant(values []float64) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
