package estimators

import (
	"fmt"
	"strings"

	"goboot/domain/core"
	"goboot/ports"
)

// Spec selects and parameterizes an estimator explicitly. Column
// arguments travel in kind-specific order; nothing is looked up from
// ambient state.
type Spec struct {
	Kind    string   `json:"kind"`
	Columns []string `json:"columns,omitempty"`
	// Percent parameterizes the quantile estimator, in (0, 100).
	Percent float64  `json:"percent,omitempty"`
	GLM     *GLMSpec `json:"glm,omitempty"`
}

// Build maps a spec onto a configured estimator.
func Build(spec Spec) (ports.Estimator, error) {
	kind := strings.ToLower(strings.TrimSpace(spec.Kind))
	switch kind {

	case "mean":
		if err := wantColumns(spec, 1); err != nil {
			return nil, err
		}
		return NewColumnMean(spec.Columns[0]), nil

	case "median":
		if err := wantColumns(spec, 1); err != nil {
			return nil, err
		}
		return NewColumnMedian(spec.Columns[0]), nil

	case "sd", "stddev":
		if err := wantColumns(spec, 1); err != nil {
			return nil, err
		}
		return NewColumnSD(spec.Columns[0]), nil

	case "cv":
		if err := wantColumns(spec, 1); err != nil {
			return nil, err
		}
		return NewColumnCV(spec.Columns[0]), nil

	case "quantile", "percentile":
		if err := wantColumns(spec, 1); err != nil {
			return nil, err
		}
		if spec.Percent <= 0 || spec.Percent >= 100 {
			return nil, core.NewInvalidInputError("percent",
				fmt.Sprintf("quantile percent must be in (0, 100), got %g", spec.Percent))
		}
		return NewColumnQuantile(spec.Columns[0], spec.Percent), nil

	case "pearson", "correlation":
		if err := wantColumns(spec, 2); err != nil {
			return nil, err
		}
		return NewPearson(spec.Columns[0], spec.Columns[1]), nil

	case "icc":
		if err := wantColumns(spec, 2); err != nil {
			return nil, err
		}
		return NewICC(spec.Columns[0], spec.Columns[1]), nil

	case "glm":
		if spec.GLM == nil {
			return nil, core.NewInvalidInputError("glm", "glm estimator requires a model spec")
		}
		return NewGLM(*spec.GLM)

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrEstimatorNotFound, spec.Kind)
	}
}

func wantColumns(spec Spec, n int) error {
	if len(spec.Columns) != n {
		return core.NewInvalidInputError("columns",
			fmt.Sprintf("%s estimator takes %d column(s), got %d", spec.Kind, n, len(spec.Columns)))
	}
	for _, c := range spec.Columns {
		if strings.TrimSpace(c) == "" {
			return core.NewInvalidInputError("columns", "column names cannot be blank")
		}
	}
	return nil
}

// Descriptor describes one available estimator kind for discovery.
type Descriptor struct {
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Columns     []string `json:"columns"`
}

// Catalog returns all available estimator kinds for UI/display.
func Catalog() []Descriptor {
	return []Descriptor{
		{
			Kind:        "mean",
			Description: "Mean of one numeric column",
			Columns:     []string{"value"},
		},
		{
			Kind:        "median",
			Description: "Median of one numeric column",
			Columns:     []string{"value"},
		},
		{
			Kind:        "sd",
			Description: "Sample standard deviation of one numeric column",
			Columns:     []string{"value"},
		},
		{
			Kind:        "cv",
			Description: "Coefficient of variation of one numeric column",
			Columns:     []string{"value"},
		},
		{
			Kind:        "quantile",
			Description: "Percentile of one numeric column (takes percent)",
			Columns:     []string{"value"},
		},
		{
			Kind:        "pearson",
			Description: "Pearson correlation between two numeric columns",
			Columns:     []string{"x", "y"},
		},
		{
			Kind:        "icc",
			Description: "Intraclass correlation ICC(1) of values grouped by a categorical column",
			Columns:     []string{"value", "group"},
		},
		{
			Kind:        "glm",
			Description: "Generalized linear model coefficients (gaussian, binomial, poisson, gamma)",
			Columns:     []string{"response", "predictors..."},
		},
	}
}
