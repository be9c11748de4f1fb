package boot

import (
	"fmt"
	"sync/atomic"

	"goboot/domain/core"
)

// Resample is one drawing of row indices, with replacement, from a
// dataset's row range.
// INVARIANTS:
// - ID is a 1-based sequential integer, unique within a run
// - len(Indices) equals the source dataset's row count
// - every index lies in [0, rows)
// - the ID -> Indices mapping never changes for the duration of a run
type Resample struct {
	ID      int   `json:"id"`
	Indices []int `json:"indices"`
}

// FailureCode classifies why a replicate is missing.
type FailureCode string

const (
	// FailureEstimator records an estimator error on one resample.
	FailureEstimator FailureCode = "estimator_failure"
	// FailureTimeout records an estimator invocation that exceeded its
	// allotted time; treated identically to an estimator failure.
	FailureTimeout FailureCode = "timeout"
)

// Replicate is one resample's computed estimate, or a missing marker.
// Values aligns with the estimator's declared output names.
type Replicate struct {
	Resample int         `json:"resample"`
	Values   []float64   `json:"values,omitempty"`
	Missing  bool        `json:"missing"`
	Failure  FailureCode `json:"failure,omitempty"`
}

// NewReplicate builds a usable replicate.
func NewReplicate(resampleID int, values []float64) Replicate {
	return Replicate{Resample: resampleID, Values: values}
}

// NewMissingReplicate builds a missing replicate with its failure class.
func NewMissingReplicate(resampleID int, code FailureCode) Replicate {
	return Replicate{Resample: resampleID, Missing: true, Failure: code}
}

// ReplicateSet is the complete collection of replicates from one run and
// the sole persisted artifact of that run; every derived statistic is a
// pure function of this set.
// INVARIANTS:
// - a completed run has exactly Requested replicates
// - a cancelled run has fewer, and Partial is true
// - replicates are ordered by resample ID
type ReplicateSet struct {
	RunID       core.RunID     `json:"run_id"`
	Estimator   string         `json:"estimator"`
	Outputs     []string       `json:"outputs"`
	Requested   int            `json:"requested"`
	Seed        int64          `json:"seed"`
	Replicates  []Replicate    `json:"replicates"`
	Partial     bool           `json:"partial"`
	Fingerprint core.Hash      `json:"fingerprint"`
	CreatedAt   core.Timestamp `json:"created_at"`
}

// Completed returns the number of finalized replicates, missing included.
func (s *ReplicateSet) Completed() int {
	return len(s.Replicates)
}

// Usable returns the number of non-missing replicates.
func (s *ReplicateSet) Usable() int {
	n := 0
	for _, r := range s.Replicates {
		if !r.Missing {
			n++
		}
	}
	return n
}

// MissingCount returns the number of missing replicates.
func (s *ReplicateSet) MissingCount() int {
	return len(s.Replicates) - s.Usable()
}

// OutputIndex locates a named estimate series.
func (s *ReplicateSet) OutputIndex(name string) (int, error) {
	for i, out := range s.Outputs {
		if out == name {
			return i, nil
		}
	}
	return 0, core.NewNotFoundError("output series", name)
}

// Series returns the usable values of one named output, in resample
// order. Missing replicates are skipped, so the result may be shorter
// than Completed().
func (s *ReplicateSet) Series(name string) ([]float64, error) {
	idx, err := s.OutputIndex(name)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(s.Replicates))
	for _, r := range s.Replicates {
		if r.Missing {
			continue
		}
		if idx >= len(r.Values) {
			return nil, fmt.Errorf("replicate %d carries %d values, output %q needs index %d",
				r.Resample, len(r.Values), name, idx)
		}
		values = append(values, r.Values[idx])
	}
	return values, nil
}

// Validate checks the set's structural invariants.
func (s *ReplicateSet) Validate() error {
	if s.Requested < 1 {
		return core.NewInvalidInputError("requested", "iteration count must be at least 1")
	}
	if !s.Partial && len(s.Replicates) != s.Requested {
		return fmt.Errorf("complete set has %d replicates, requested %d", len(s.Replicates), s.Requested)
	}
	if s.Partial && len(s.Replicates) >= s.Requested {
		return fmt.Errorf("partial set has %d replicates, expected fewer than %d", len(s.Replicates), s.Requested)
	}
	prev := 0
	for _, r := range s.Replicates {
		if r.Resample <= prev {
			return fmt.Errorf("replicates out of order at resample %d", r.Resample)
		}
		if !r.Missing && len(r.Values) != len(s.Outputs) {
			return fmt.Errorf("replicate %d carries %d values for %d outputs",
				r.Resample, len(r.Values), len(s.Outputs))
		}
		prev = r.Resample
	}
	return nil
}

// Method selects how a confidence interval is derived from a replicate
// series.
type Method string

const (
	// MethodStudentT bounds the interval with mean +/- t-critical * SE.
	MethodStudentT Method = "student_t"
	// MethodPercentile bounds the interval with empirical quantiles of
	// the replicate distribution.
	MethodPercentile Method = "percentile"
)

// ParseMethod validates an interval method name at a boundary. Empty
// selects the student_t default.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "":
		return MethodStudentT, nil
	case MethodStudentT, MethodPercentile:
		return Method(s), nil
	default:
		return "", core.NewInvalidInputError("method", fmt.Sprintf("unknown interval method %q", s))
	}
}

// SeriesSummary is one row of the tabular result: the derived statistics
// for one named estimate series. Always recomputed from the replicate
// set, never authoritative on its own.
type SeriesSummary struct {
	Name     string  `json:"name"`
	Mean     float64 `json:"estimate_mean"`
	StdError float64 `json:"std_error"`
	CILower  float64 `json:"ci_lower"`
	CIUpper  float64 `json:"ci_upper"`
	PValue   float64 `json:"p_value"`
	Usable   int     `json:"usable"`
	Missing  int     `json:"missing"`

	// Err carries a per-series failure (insufficient data); it never
	// aborts sibling series in the same batch.
	Err error `json:"-"`
}

// Profile describes a replicate series' empirical distribution, for
// reporting alongside the inferential summary.
type Profile struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	SD     float64 `json:"sd"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
}

// ProgressFunc observes run progress. The engine invokes it after each
// replicate is finalized, serialized (never concurrently), with the
// count of completed iterations and the requested total.
type ProgressFunc func(completed, total int)

// Tracker is a pollable progress counter, safe for concurrent reads
// while a run is in flight.
type Tracker struct {
	completed atomic.Int64
	total     atomic.Int64
}

// NewTracker creates a tracker for a run of the given total.
func NewTracker(total int) *Tracker {
	t := &Tracker{}
	t.total.Store(int64(total))
	return t
}

// Increment records one finalized replicate.
func (t *Tracker) Increment() {
	t.completed.Add(1)
}

// SetTotal corrects the requested total once a run resolves it. Callers
// that build a tracker before defaults are applied rely on this.
func (t *Tracker) SetTotal(total int) {
	t.total.Store(int64(total))
}

// Completed returns the number of finalized replicates so far.
func (t *Tracker) Completed() int {
	return int(t.completed.Load())
}

// Total returns the requested iteration count.
func (t *Tracker) Total() int {
	return int(t.total.Load())
}

// Snapshot returns (completed, total) in one call.
func (t *Tracker) Snapshot() (int, int) {
	return t.Completed(), t.Total()
}
