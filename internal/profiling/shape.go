package profiling

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// moments returns the mean and the second, third and fourth central
// moments of values.
func moments(values []float64) (mean, m2, m3, m4 float64) {
	n := float64(len(values))
	for _, v := range values {
		mean += v
	}
	mean /= n

	for _, v := range values {
		d := v - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m3 /= n
	m4 /= n
	return mean, m2, m3, m4
}

// sampleSkewness computes the adjusted Fisher-Pearson skewness
// coefficient. Columns too short or constant report 0.
func sampleSkewness(values []float64) float64 {
	n := float64(len(values))
	if n < 3 {
		return 0
	}
	_, m2, m3, _ := moments(values)
	if m2 == 0 {
		return 0
	}
	g1 := m3 / math.Pow(m2, 1.5)
	return g1 * math.Sqrt(n*(n-1)) / (n - 2)
}

// sampleKurtosis computes total kurtosis, so a normal sample sits
// near 3. Columns too short or constant report 0.
func sampleKurtosis(values []float64) float64 {
	n := float64(len(values))
	if n < 4 {
		return 0
	}
	_, m2, _, m4 := moments(values)
	if m2 == 0 {
		return 0
	}
	return m4 / (m2 * m2)
}

// jarqueBera screens for normality from skewness and excess kurtosis.
// The statistic is asymptotically chi-squared with two degrees of
// freedom; a degenerate (constant) sample reports p 0.
func jarqueBera(values []float64) (stat, p float64) {
	n := float64(len(values))
	_, m2, m3, m4 := moments(values)
	if m2 == 0 {
		return 0, 0
	}

	skew := m3 / math.Pow(m2, 1.5)
	excess := m4/(m2*m2) - 3
	stat = n * (skew*skew/6 + excess*excess/24)

	chi := distuv.ChiSquared{K: 2}
	return stat, 1 - chi.CDF(stat)
}

// countOutliers flags values beyond 1.5 interquartile ranges of the
// quartiles.
func countOutliers(values []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lower := q25 - 1.5*iqr
	upper := q75 + 1.5*iqr

	outliers := 0
	for _, v := range values {
		if v < lower || v > upper {
			outliers++
		}
	}
	return outliers
}
