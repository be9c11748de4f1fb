package estimators

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"goboot/ports"
)

// NewColumnMean estimates the mean of one numeric column per resample.
func NewColumnMean(column string) ports.Estimator {
	return ports.SeriesFunc{
		ID:     fmt.Sprintf("mean(%s)", column),
		Output: "mean",
		Column: column,
		Fn: func(values []float64) (float64, error) {
			return stats.Mean(values)
		},
	}
}

// NewColumnMedian estimates the median of one numeric column per resample.
func NewColumnMedian(column string) ports.Estimator {
	return ports.SeriesFunc{
		ID:     fmt.Sprintf("median(%s)", column),
		Output: "median",
		Column: column,
		Fn: func(values []float64) (float64, error) {
			return stats.Median(values)
		},
	}
}

// NewColumnSD estimates the sample standard deviation of one numeric
// column per resample.
func NewColumnSD(column string) ports.Estimator {
	return ports.SeriesFunc{
		ID:     fmt.Sprintf("sd(%s)", column),
		Output: "sd",
		Column: column,
		Fn: func(values []float64) (float64, error) {
			if len(values) < 2 {
				return 0, fmt.Errorf("sd needs at least 2 values, got %d", len(values))
			}
			return stats.StandardDeviationSample(values)
		},
	}
}

// NewColumnQuantile estimates one percentile of a numeric column per
// resample. Percentiles the underlying dep cannot place on very small
// resamples surface as errors and become missing replicates.
func NewColumnQuantile(column string, percent float64) ports.Estimator {
	return ports.SeriesFunc{
		ID:     fmt.Sprintf("p%g(%s)", percent, column),
		Output: fmt.Sprintf("p%g", percent),
		Column: column,
		Fn: func(values []float64) (float64, error) {
			return stats.Percentile(values, percent)
		},
	}
}

// NewColumnCV estimates the coefficient of variation (SD over mean) of
// one numeric column per resample.
func NewColumnCV(column string) ports.Estimator {
	return ports.SeriesFunc{
		ID:     fmt.Sprintf("cv(%s)", column),
		Output: "cv",
		Column: column,
		Fn: func(values []float64) (float64, error) {
			if len(values) < 2 {
				return 0, fmt.Errorf("cv needs at least 2 values, got %d", len(values))
			}
			mean, err := stats.Mean(values)
			if err != nil {
				return 0, err
			}
			if mean == 0 {
				return 0, fmt.Errorf("cv is undefined for zero mean")
			}
			sd, err := stats.StandardDeviationSample(values)
			if err != nil {
				return 0, err
			}
			return sd / mean, nil
		},
	}
}
