package estimators

import (
	"fmt"

	"goboot/domain/dataset"
)

// ICCEstimator estimates the intraclass correlation coefficient ICC(1)
// of a numeric column grouped by a categorical column, via one-way
// random-effects ANOVA. It quantifies how much of the total variance is
// carried between groups rather than within them.
type ICCEstimator struct {
	valueColumn string
	groupColumn string
}

// NewICC creates an ICC(1) estimator: values grouped by group labels.
func NewICC(valueColumn, groupColumn string) *ICCEstimator {
	return &ICCEstimator{valueColumn: valueColumn, groupColumn: groupColumn}
}

// Name identifies the estimator, column pair included.
func (e *ICCEstimator) Name() string {
	return fmt.Sprintf("icc(%s~%s)", e.valueColumn, e.groupColumn)
}

// Outputs returns the single ICC output.
func (e *ICCEstimator) Outputs() []string {
	return []string{"icc"}
}

// Estimate decomposes variance on one materialized resample. Resamples
// that collapse to a single group, or to one observation per group,
// cannot support the decomposition and error out.
func (e *ICCEstimator) Estimate(ds *dataset.Dataset) ([]float64, error) {
	values, err := ds.NumericColumn(e.valueColumn)
	if err != nil {
		return nil, err
	}
	labels, err := ds.Labels(e.groupColumn)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]float64)
	for i, label := range labels {
		groups[label] = append(groups[label], values[i])
	}
	g := len(groups)
	n := len(values)
	if g < 2 {
		return nil, fmt.Errorf("icc needs at least 2 groups, resample has %d", g)
	}
	if n <= g {
		return nil, fmt.Errorf("icc needs replicated observations, resample has %d rows in %d groups", n, g)
	}

	grand := 0.0
	for _, v := range values {
		grand += v
	}
	grand /= float64(n)

	// Between and within sums of squares.
	ssb, ssw := 0.0, 0.0
	sumNiSq := 0.0
	for _, members := range groups {
		ni := float64(len(members))
		sumNiSq += ni * ni

		groupMean := 0.0
		for _, v := range members {
			groupMean += v
		}
		groupMean /= ni

		ssb += ni * (groupMean - grand) * (groupMean - grand)
		for _, v := range members {
			ssw += (v - groupMean) * (v - groupMean)
		}
	}

	msb := ssb / float64(g-1)
	msw := ssw / float64(n-g)

	// Average group size correction for unbalanced designs.
	k0 := (float64(n) - sumNiSq/float64(n)) / float64(g-1)

	denom := msb + (k0-1)*msw
	if denom == 0 {
		return nil, fmt.Errorf("icc undefined: no variance on this resample")
	}
	return []float64{(msb - msw) / denom}, nil
}
