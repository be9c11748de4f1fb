package profiling

import (
	"fmt"
	"math"
	"sort"

	"goboot/domain/boot"
	"goboot/domain/dataset"
	"goboot/internal/bootstrap"
)

// ColumnProfile describes one column of a dataset before any resampling
// happens: how much of it is usable, and what shape it has. Numeric
// columns carry a Summary; label columns carry level counts.
type ColumnProfile struct {
	Key     string       `json:"key"`
	Kind    dataset.Kind `json:"kind"`
	Rows    int          `json:"rows"`
	Missing int          `json:"missing"`

	Summary *NumericSummary `json:"summary,omitempty"`

	Cardinality int          `json:"cardinality,omitempty"`
	Levels      []LevelCount `json:"levels,omitempty"`
}

// NumericSummary extends the base distribution profile with shape
// diagnostics. Kurtosis is total kurtosis, so a normal column sits
// near 3.
type NumericSummary struct {
	boot.Profile
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	Outliers int     `json:"outliers"`

	// NormalP is the Jarque-Bera p-value; Normal is only set when at
	// least eight usable values exist.
	NormalP float64 `json:"normal_p"`
	Normal  bool    `json:"normal"`
}

// LevelCount is one categorical level and its frequency.
type LevelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// maxLevels caps how many levels a profile reports; counts beyond it
// are still reflected in Cardinality.
const maxLevels = 10

// ProfileDataset profiles every column in declaration order.
func ProfileDataset(ds *dataset.Dataset) ([]ColumnProfile, error) {
	profiles := make([]ColumnProfile, 0, ds.ColumnCount())
	for _, key := range ds.Keys() {
		col, err := ds.Column(key.String())
		if err != nil {
			return nil, err
		}

		profile := ColumnProfile{
			Key:  key.String(),
			Kind: col.Kind,
			Rows: col.Len(),
		}
		switch col.Kind {
		case dataset.KindNumeric:
			if err := profileNumeric(&profile, col.Floats); err != nil {
				return nil, fmt.Errorf("failed to profile %s: %w", key, err)
			}
		default:
			profileLabels(&profile, col)
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// profileNumeric summarizes the column's usable values. Columns with
// fewer than two usable values keep a nil Summary.
func profileNumeric(profile *ColumnProfile, values []float64) error {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	profile.Missing = len(values) - len(clean)
	if len(clean) < 2 {
		return nil
	}

	base, err := bootstrap.DescribeSeries(clean)
	if err != nil {
		return err
	}

	summary := &NumericSummary{
		Profile:  base,
		Skewness: sampleSkewness(clean),
		Kurtosis: sampleKurtosis(clean),
		Outliers: countOutliers(clean, base.P25, base.P75),
	}
	if len(clean) >= 8 {
		_, p := jarqueBera(clean)
		summary.NormalP = p
		summary.Normal = p > 0.05
	}
	profile.Summary = summary
	return nil
}

// profileLabels counts levels. Identifier columns report cardinality
// only; their labels are row identity, not categories.
func profileLabels(profile *ColumnProfile, col dataset.Column) {
	counts := make(map[string]int)
	for _, label := range col.Labels {
		if label == "" {
			profile.Missing++
			continue
		}
		counts[label]++
	}
	profile.Cardinality = len(counts)

	if col.Kind == dataset.KindIdentifier {
		return
	}

	levels := make([]LevelCount, 0, len(counts))
	for label, count := range counts {
		levels = append(levels, LevelCount{Label: label, Count: count})
	}
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Count != levels[j].Count {
			return levels[i].Count > levels[j].Count
		}
		return levels[i].Label < levels[j].Label
	})
	if len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	profile.Levels = levels
}
