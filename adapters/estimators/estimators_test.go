package estimators

import (
	"math"
	"strings"
	"testing"

	"goboot/domain/core"
	"goboot/domain/dataset"
)

func almostEqual(t *testing.T, name string, got, want, tolerance float64) {
	t.Helper()
	if math.Abs(got-want) > tolerance {
		t.Errorf("%s = %v, want within %v of %v", name, got, tolerance, want)
	}
}

func numericDataset(t *testing.T, columns map[string][]float64) *dataset.Dataset {
	t.Helper()
	cols := make([]dataset.Column, 0, len(columns))
	// Deterministic order keeps fingerprints stable across test runs.
	keys := make([]string, 0, len(columns))
	for k := range columns {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	for _, k := range keys {
		cols = append(cols, dataset.NumericColumn(k, columns[k]))
	}
	ds, err := dataset.New(cols...)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	return ds
}

func TestColumnEstimators(t *testing.T) {
	ds := numericDataset(t, map[string][]float64{
		"severity_score": {2, 4, 4, 4, 5, 5, 7, 9},
	})

	testCases := []struct {
		kind string
		want float64
	}{
		{"mean", 5.0},
		{"median", 4.5},
		{"sd", math.Sqrt(32.0 / 7.0)},
		{"cv", math.Sqrt(32.0/7.0) / 5.0},
	}

	for _, tc := range testCases {
		t.Run(tc.kind, func(t *testing.T) {
			est, err := Build(Spec{Kind: tc.kind, Columns: []string{"severity_score"}})
			if err != nil {
				t.Fatalf("Build(%s) failed: %v", tc.kind, err)
			}
			values, err := est.Estimate(ds)
			if err != nil {
				t.Fatalf("Estimate failed: %v", err)
			}
			if len(values) != 1 {
				t.Fatalf("got %d values, want 1", len(values))
			}
			almostEqual(t, tc.kind, values[0], tc.want, 1e-9)
			if !strings.Contains(est.Name(), "severity_score") {
				t.Errorf("estimator name %q should carry its column", est.Name())
			}
		})
	}
}

func TestQuantileEstimator(t *testing.T) {
	ds := numericDataset(t, map[string][]float64{
		"severity_score": {2, 4, 4, 4, 5, 5, 7, 9},
	})

	testCases := []struct {
		percent float64
		want    float64
	}{
		{25, 4.0},
		{50, 4.0},
		{90, 8.0},
	}
	for _, tc := range testCases {
		est, err := Build(Spec{Kind: "quantile", Columns: []string{"severity_score"}, Percent: tc.percent})
		if err != nil {
			t.Fatalf("Build(quantile %g) failed: %v", tc.percent, err)
		}
		values, err := est.Estimate(ds)
		if err != nil {
			t.Fatalf("Estimate failed at p%g: %v", tc.percent, err)
		}
		almostEqual(t, est.Name(), values[0], tc.want, 1e-9)
	}

	for _, percent := range []float64{0, 100, -5} {
		if _, err := Build(Spec{Kind: "quantile", Columns: []string{"x"}, Percent: percent}); !core.IsInvalidInput(err) {
			t.Errorf("percent %g should be invalid input, got %v", percent, err)
		}
	}
}

func TestPearsonEstimator(t *testing.T) {
	ds := numericDataset(t, map[string][]float64{
		"x": {1, 2, 3, 4, 5},
		"y": {2, 4, 6, 8, 10},
	})

	est := NewPearson("x", "y")
	values, err := est.Estimate(ds)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	almostEqual(t, "r", values[0], 1.0, 1e-9)

	inverse := numericDataset(t, map[string][]float64{
		"x": {1, 2, 3, 4, 5},
		"y": {10, 8, 6, 4, 2},
	})
	values, err = est.Estimate(inverse)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	almostEqual(t, "r", values[0], -1.0, 1e-9)

	constant := numericDataset(t, map[string][]float64{
		"x": {3, 3, 3, 3, 3},
		"y": {1, 2, 3, 4, 5},
	})
	if _, err := est.Estimate(constant); err == nil {
		t.Error("constant column should make correlation undefined")
	}
}

func TestICCEstimator(t *testing.T) {
	// Balanced one-way design: 3 groups of 3 with MSB=27, MSW=1, so
	// ICC(1) = (27-1)/(27+2) = 26/29.
	ds, err := dataset.New(
		dataset.NumericColumn("rating", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}),
		dataset.CategoricalColumn("rater", []string{"a", "a", "a", "b", "b", "b", "c", "c", "c"}),
	)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}

	est := NewICC("rating", "rater")
	values, err := est.Estimate(ds)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	almostEqual(t, "icc", values[0], 26.0/29.0, 1e-9)

	// A resample that collapses to one group cannot decompose variance.
	oneGroup, err := dataset.New(
		dataset.NumericColumn("rating", []float64{1, 2, 3}),
		dataset.CategoricalColumn("rater", []string{"a", "a", "a"}),
	)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	if _, err := est.Estimate(oneGroup); err == nil {
		t.Error("single group should make ICC undefined")
	}

	// One observation per group leaves no within-group variance.
	singletons, err := dataset.New(
		dataset.NumericColumn("rating", []float64{1, 2, 3}),
		dataset.CategoricalColumn("rater", []string{"a", "b", "c"}),
	)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	if _, err := est.Estimate(singletons); err == nil {
		t.Error("singleton groups should make ICC undefined")
	}
}

func TestGLMEstimatorGaussian(t *testing.T) {
	// Exact linear data: gaussian/identity recovers y = 2 + 3x.
	n := 20
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i)
		y[i] = 2 + 3*x[i]
	}
	ds := numericDataset(t, map[string][]float64{"x": x, "y": y})

	est, err := NewGLM(GLMSpec{Response: "y", Predictors: []string{"x"}, Family: FamilyGaussian})
	if err != nil {
		t.Fatalf("NewGLM failed: %v", err)
	}

	outputs := est.Outputs()
	if len(outputs) != 2 || outputs[0] != "icept" || outputs[1] != "x" {
		t.Fatalf("Outputs() = %v, want [icept x]", outputs)
	}

	values, err := est.Estimate(ds)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	almostEqual(t, "icept", values[0], 2.0, 1e-4)
	almostEqual(t, "x", values[1], 3.0, 1e-4)
}

func TestGLMSpecValidation(t *testing.T) {
	if _, err := NewGLM(GLMSpec{Response: "", Predictors: []string{"x"}}); !core.IsInvalidInput(err) {
		t.Errorf("empty response should be invalid input, got %v", err)
	}
	if _, err := NewGLM(GLMSpec{Response: "y", Predictors: nil}); !core.IsInvalidInput(err) {
		t.Errorf("no predictors should be invalid input, got %v", err)
	}
	if _, err := NewGLM(GLMSpec{Response: "y", Predictors: []string{"y"}}); !core.IsInvalidInput(err) {
		t.Errorf("response as predictor should be invalid input, got %v", err)
	}
	if _, err := NewGLM(GLMSpec{Response: "y", Predictors: []string{"icept"}}); !core.IsInvalidInput(err) {
		t.Errorf("reserved intercept name should be invalid input, got %v", err)
	}
	if _, err := NewGLM(GLMSpec{Response: "y", Predictors: []string{"x"}, Family: "tweedie"}); !core.IsInvalidInput(err) {
		t.Errorf("unsupported family should be invalid input, got %v", err)
	}
}

func TestBuildCatalogCoverage(t *testing.T) {
	// Every advertised kind must build with plausible arguments.
	for _, desc := range Catalog() {
		spec := Spec{Kind: desc.Kind}
		switch desc.Kind {
		case "glm":
			spec.GLM = &GLMSpec{Response: "y", Predictors: []string{"x"}, Family: FamilyGaussian}
		case "pearson", "icc":
			spec.Columns = []string{"a", "b"}
		case "quantile":
			spec.Columns = []string{"a"}
			spec.Percent = 90
		default:
			spec.Columns = []string{"a"}
		}
		if _, err := Build(spec); err != nil {
			t.Errorf("catalog kind %q does not build: %v", desc.Kind, err)
		}
	}

	if _, err := Build(Spec{Kind: "loess"}); !core.IsNotFoundError(err) {
		t.Errorf("unknown kind should be not-found, got %v", err)
	}
	if _, err := Build(Spec{Kind: "pearson", Columns: []string{"only_one"}}); !core.IsInvalidInput(err) {
		t.Errorf("wrong column arity should be invalid input, got %v", err)
	}
}
