package estimators

import (
	"fmt"
	"strings"

	"github.com/kshedden/statmodel/glm"

	"goboot/domain/core"
	"goboot/domain/dataset"
)

// Family is the closed set of supported GLM families, each bound to its
// canonical link. The set is resolved when the estimator is built;
// nothing downstream re-interprets family strings.
type Family string

const (
	FamilyGaussian Family = "gaussian"
	FamilyBinomial Family = "binomial"
	FamilyPoisson  Family = "poisson"
	FamilyGamma    Family = "gamma"
)

// interceptName is the design column statmodel expects for the constant
// term.
const interceptName = "icept"

// GLMSpec declares a model fit explicitly: response, predictors, and
// family are all caller-supplied, never ambient configuration.
type GLMSpec struct {
	Response   string   `json:"response"`
	Predictors []string `json:"predictors"`
	Family     Family   `json:"family"`
}

// GLMEstimator refits a generalized linear model on every resample and
// reports its coefficients, one output per design term.
type GLMEstimator struct {
	spec    GLMSpec
	family  *glm.Family
	link    *glm.Link
	outputs []string
}

// NewGLM builds a GLM estimator from an explicit spec.
func NewGLM(spec GLMSpec) (*GLMEstimator, error) {
	if spec.Response == "" {
		return nil, core.NewInvalidInputError("response", "must name a numeric column")
	}
	if len(spec.Predictors) == 0 {
		return nil, core.NewInvalidInputError("predictors", "at least one predictor required")
	}
	for _, p := range spec.Predictors {
		if p == spec.Response {
			return nil, core.NewInvalidInputError("predictors", fmt.Sprintf("%s is also the response", p))
		}
		if p == interceptName {
			return nil, core.NewInvalidInputError("predictors", fmt.Sprintf("%s is reserved for the intercept", p))
		}
	}

	var family *glm.Family
	var link *glm.Link
	switch spec.Family {
	case FamilyGaussian, "":
		family = glm.NewFamily(glm.GaussianFamily)
		link = glm.NewLink(glm.IdentityLink)
		spec.Family = FamilyGaussian
	case FamilyBinomial:
		family = glm.NewFamily(glm.BinomialFamily)
		link = glm.NewLink(glm.LogitLink)
	case FamilyPoisson:
		family = glm.NewFamily(glm.PoissonFamily)
		link = glm.NewLink(glm.LogLink)
	case FamilyGamma:
		family = glm.NewFamily(glm.GammaFamily)
		link = glm.NewLink(glm.LogLink)
	default:
		return nil, core.NewInvalidInputError("family", fmt.Sprintf("unknown family %q", spec.Family))
	}

	outputs := make([]string, 0, len(spec.Predictors)+1)
	outputs = append(outputs, interceptName)
	outputs = append(outputs, spec.Predictors...)

	return &GLMEstimator{
		spec:    spec,
		family:  family,
		link:    link,
		outputs: outputs,
	}, nil
}

// Name identifies the estimator by its full model formula.
func (e *GLMEstimator) Name() string {
	return fmt.Sprintf("glm_%s(%s~%s)", e.spec.Family, e.spec.Response, strings.Join(e.spec.Predictors, "+"))
}

// Outputs returns one coefficient name per design term, intercept first.
func (e *GLMEstimator) Outputs() []string {
	return append([]string(nil), e.outputs...)
}

// Estimate refits the model on one materialized resample. Degenerate
// resamples that break the fit surface as errors (or panics inside the
// fitting dep) and become missing replicates upstream.
func (e *GLMEstimator) Estimate(ds *dataset.Dataset) ([]float64, error) {
	y, err := ds.NumericColumn(e.spec.Response)
	if err != nil {
		return nil, err
	}

	icept := make([]float64, len(y))
	for i := range icept {
		icept[i] = 1
	}

	data := make([][]float64, 0, len(e.spec.Predictors)+2)
	varnames := make([]string, 0, len(e.spec.Predictors)+2)
	data = append(data, y, icept)
	varnames = append(varnames, e.spec.Response, interceptName)

	xnames := make([]string, 0, len(e.spec.Predictors)+1)
	xnames = append(xnames, interceptName)
	for _, p := range e.spec.Predictors {
		col, err := ds.NumericColumn(p)
		if err != nil {
			return nil, err
		}
		data = append(data, col)
		varnames = append(varnames, p)
		xnames = append(xnames, p)
	}

	c := glm.DefaultConfig()
	c.Family = e.family
	c.Link = e.link

	model := glm.NewGLM(data, varnames, e.spec.Response, xnames, c)
	result := model.Fit()
	if result == nil {
		return nil, fmt.Errorf("glm fit produced no result on this resample")
	}

	params := result.Params()
	if len(params) != len(e.outputs) {
		return nil, fmt.Errorf("glm fit returned %d coefficients for %d terms", len(params), len(e.outputs))
	}
	return append([]float64(nil), params...), nil
}
