package bootstrap

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"goboot/domain/boot"
	"goboot/domain/core"
)

// StandardError returns the bootstrap standard error of a replicate
// series: the sample standard deviation over M-1. Fewer than two usable
// replicates cannot support it.
func StandardError(values []float64) (float64, error) {
	if len(values) < 2 {
		return 0, core.NewInsufficientDataError("replicates", len(values))
	}
	se, err := stats.StandardDeviationSample(values)
	if err != nil {
		return 0, fmt.Errorf("failed to compute standard error: %w", err)
	}
	return se, nil
}

// ConfidenceInterval derives the interval for a replicate series at the
// given level. MethodStudentT uses mean +/- t-critical * SE; a zero SE
// collapses the interval to the point estimate. MethodPercentile takes
// the empirical quantiles of the replicate distribution.
func ConfidenceInterval(values []float64, level float64, method boot.Method) (float64, float64, error) {
	if level <= 0 || level >= 1 {
		return 0, 0, core.NewInvalidInputError("level", "must be strictly between 0 and 1")
	}
	if len(values) < 2 {
		return 0, 0, core.NewInsufficientDataError("replicates", len(values))
	}

	switch method {
	case boot.MethodPercentile:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		tail := (1 - level) / 2
		return quantile(sorted, tail), quantile(sorted, 1-tail), nil

	case boot.MethodStudentT, "":
		mean, err := stats.Mean(values)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to compute mean: %w", err)
		}
		se, err := StandardError(values)
		if err != nil {
			return 0, 0, err
		}
		margin := tCritical(float64(len(values)-1), level) * se
		return mean - margin, mean + margin, nil

	default:
		return 0, 0, core.NewInvalidInputError("method", fmt.Sprintf("unknown interval method %q", method))
	}
}

// PValue returns the two-sided p-value of the hypothesis that the
// statistic is zero, using the bootstrap t-ratio mean/SE against a
// Student's t distribution with M-1 degrees of freedom. A degenerate
// series (SE of zero) yields 1 when the mean is also zero, otherwise 0.
func PValue(values []float64) (float64, error) {
	if len(values) < 2 {
		return 0, core.NewInsufficientDataError("replicates", len(values))
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return 0, fmt.Errorf("failed to compute mean: %w", err)
	}
	se, err := StandardError(values)
	if err != nil {
		return 0, err
	}

	if se == 0 {
		if mean == 0 {
			return 1, nil
		}
		return 0, nil
	}

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(len(values) - 1)}
	p := 2 * tDist.CDF(-math.Abs(mean/se))
	if p > 1 {
		p = 1
	}
	if p < 0 {
		p = 0
	}
	return p, nil
}

// Summarize derives one summary row per output series of a replicate
// set. A series with fewer than two usable replicates carries its error
// in the row and never aborts its siblings. Structural defects in the
// set itself are the only fatal case.
func Summarize(set *boot.ReplicateSet, level float64, method boot.Method) ([]boot.SeriesSummary, error) {
	if set == nil {
		return nil, core.NewInvalidInputError("set", "must not be nil")
	}
	if level <= 0 || level >= 1 {
		return nil, core.NewInvalidInputError("level", "must be strictly between 0 and 1")
	}

	summaries := make([]boot.SeriesSummary, 0, len(set.Outputs))
	for _, name := range set.Outputs {
		values, err := set.Series(name)
		if err != nil {
			return nil, err
		}

		row := boot.SeriesSummary{
			Name:    name,
			Usable:  len(values),
			Missing: set.MissingCount(),
		}
		if len(values) < 2 {
			row.Err = core.NewInsufficientDataError(name, len(values))
			summaries = append(summaries, row)
			continue
		}

		mean, err := stats.Mean(values)
		if err != nil {
			return nil, fmt.Errorf("failed to compute mean for %s: %w", name, err)
		}
		se, err := StandardError(values)
		if err != nil {
			return nil, err
		}
		lower, upper, err := ConfidenceInterval(values, level, method)
		if err != nil {
			return nil, err
		}
		p, err := PValue(values)
		if err != nil {
			return nil, err
		}

		row.Mean = mean
		row.StdError = se
		row.CILower = lower
		row.CIUpper = upper
		row.PValue = p
		summaries = append(summaries, row)
	}
	return summaries, nil
}

// DescribeSeries profiles the empirical distribution of a replicate
// series for reporting. It accompanies the inferential summary, it does
// not replace it.
func DescribeSeries(values []float64) (boot.Profile, error) {
	if len(values) < 2 {
		return boot.Profile{}, core.NewInsufficientDataError("replicates", len(values))
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return boot.Profile{}, fmt.Errorf("failed to profile series: %w", err)
	}
	median, err := stats.Median(values)
	if err != nil {
		return boot.Profile{}, fmt.Errorf("failed to profile series: %w", err)
	}
	sd, err := stats.StandardDeviationSample(values)
	if err != nil {
		return boot.Profile{}, fmt.Errorf("failed to profile series: %w", err)
	}
	min, err := stats.Min(values)
	if err != nil {
		return boot.Profile{}, fmt.Errorf("failed to profile series: %w", err)
	}
	max, err := stats.Max(values)
	if err != nil {
		return boot.Profile{}, fmt.Errorf("failed to profile series: %w", err)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return boot.Profile{
		Mean:   mean,
		Median: median,
		SD:     sd,
		Min:    min,
		Max:    max,
		P25:    quantile(sorted, 0.25),
		P75:    quantile(sorted, 0.75),
	}, nil
}

// quantile interpolates the empirical quantile of sorted values at
// probability p, following R's default convention (type 7). It is
// defined for any series of at least one value, which the percentile
// interval needs at small replicate counts.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	h := p * float64(n-1)
	i := int(math.Floor(h))
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-float64(i))*(sorted[i+1]-sorted[i])
}

// tCritical returns the two-sided critical value of Student's t at the
// given confidence level.
func tCritical(df, level float64) float64 {
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return tDist.Quantile(1 - (1-level)/2)
}
