package app

import (
	"context"
	"fmt"
	"time"

	"goboot/domain/boot"
	"goboot/domain/core"
	"goboot/internal"
	"goboot/internal/bootstrap"
	"goboot/internal/config"
	"goboot/internal/profiling"
	"goboot/ports"
)

// BootstrapService owns the run lifecycle: load the data, execute the
// resampling run, derive the summary table, persist both. Estimators
// arrive already resolved; callers decode their wire form at the
// transport boundary.
type BootstrapService struct {
	engine   *bootstrap.Engine
	ledger   ports.RunLedgerPort
	reader   ports.DatasetReaderPort
	logger   *internal.Logger
	defaults config.BootConfig
	source   string
}

// NewBootstrapService creates the service. cfg supplies fallback values
// for fields a request leaves zero.
func NewBootstrapService(engine *bootstrap.Engine, ledger ports.RunLedgerPort, reader ports.DatasetReaderPort, cfg *config.Config) *BootstrapService {
	svc := &BootstrapService{
		engine: engine,
		ledger: ledger,
		reader: reader,
		logger: internal.DefaultLogger,
	}
	if cfg != nil {
		svc.defaults = cfg.Boot
		svc.source = cfg.Data.File
	}
	return svc
}

// RunRequest defines the inputs for one bootstrap run. Zero-valued
// fields fall back to the configured defaults.
type RunRequest struct {
	Source     string
	Estimator  ports.Estimator
	Iterations int
	Seed       int64
	Workers    int
	Confidence float64
	Method     boot.Method

	// RunID pre-assigns the run's identity. Async callers hand the ID
	// to clients before the run finishes; empty draws a fresh one.
	RunID core.RunID

	// OnProgress and Tracker observe the run; they never alter it.
	OnProgress boot.ProgressFunc
	Tracker    *boot.Tracker
}

// RunResult contains the complete outcome of one run.
type RunResult struct {
	RunID       core.RunID           `json:"run_id"`
	Estimator   string               `json:"estimator"`
	Requested   int                  `json:"requested"`
	Completed   int                  `json:"completed"`
	Usable      int                  `json:"usable"`
	Missing     int                  `json:"missing"`
	Partial     bool                 `json:"partial"`
	Seed        int64                `json:"seed"`
	Confidence  float64              `json:"confidence"`
	Method      boot.Method          `json:"method"`
	Fingerprint core.Hash            `json:"fingerprint"`
	Summaries   []boot.SeriesSummary `json:"summaries"`
	RuntimeMs   int64                `json:"runtime_ms"`
	CreatedAt   core.Timestamp       `json:"created_at"`
}

// Run executes one bootstrap run end to end. A run cancelled mid-flight
// still persists its partial replicate set, flagged as partial.
func (s *BootstrapService) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	startTime := time.Now()

	source := req.Source
	if source == "" {
		source = s.source
	}
	if source == "" {
		return nil, core.NewInvalidInputError("source", "no data file requested or configured")
	}
	if req.Estimator == nil {
		return nil, core.NewInvalidInputError("estimator", "estimator cannot be nil")
	}

	ds, err := s.reader.Read(ctx, source)
	if err != nil {
		return nil, err
	}

	iterations := req.Iterations
	if iterations == 0 {
		iterations = s.defaults.Iterations
	}
	workers := req.Workers
	if workers == 0 {
		workers = s.defaults.Workers
	}
	seed := req.Seed
	if seed == 0 {
		seed = s.defaults.Seed
	}
	if seed == 0 {
		// Unseeded runs draw a seed and record it, so the run stays
		// reproducible after the fact.
		seed = time.Now().UnixNano()
		s.logger.Info("No seed requested for %s, drew %d", req.Estimator.Name(), seed)
	}
	confidence := req.Confidence
	if confidence == 0 {
		confidence = s.defaults.Confidence
	}
	method := req.Method
	if method == "" {
		method = boot.MethodStudentT
	}

	set, err := s.engine.Run(ctx, ds, req.Estimator, bootstrap.Options{
		Iterations: iterations,
		Seed:       seed,
		RunID:      req.RunID,
		Workers:    workers,
		Timeout:    s.defaults.Timeout,
		OnProgress: req.OnProgress,
		Tracker:    req.Tracker,
	})
	if err != nil {
		return nil, err
	}

	summaries, err := bootstrap.Summarize(set, confidence, method)
	if err != nil {
		return nil, err
	}

	// A cancelled run persists with the run context already dead, so the
	// store gets its own bounded context.
	storeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := s.ledger.StoreRun(storeCtx, set); err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}
	if err := s.ledger.StoreSummaries(storeCtx, set.RunID, summaries); err != nil {
		return nil, fmt.Errorf("failed to persist summaries: %w", err)
	}

	return &RunResult{
		RunID:       set.RunID,
		Estimator:   set.Estimator,
		Requested:   set.Requested,
		Completed:   set.Completed(),
		Usable:      set.Usable(),
		Missing:     set.MissingCount(),
		Partial:     set.Partial,
		Seed:        set.Seed,
		Confidence:  confidence,
		Method:      method,
		Fingerprint: set.Fingerprint,
		Summaries:   summaries,
		RuntimeMs:   time.Since(startTime).Milliseconds(),
		CreatedAt:   set.CreatedAt,
	}, nil
}

// Summarize recomputes the summary table for a stored run at the given
// confidence level and method, refreshing the cached rows.
func (s *BootstrapService) Summarize(ctx context.Context, runID core.RunID, level float64, method boot.Method) ([]boot.SeriesSummary, error) {
	set, err := s.ledger.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if level == 0 {
		level = s.defaults.Confidence
	}
	if method == "" {
		method = boot.MethodStudentT
	}

	summaries, err := bootstrap.Summarize(set, level, method)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.StoreSummaries(ctx, runID, summaries); err != nil {
		return nil, fmt.Errorf("failed to refresh summaries: %w", err)
	}
	return summaries, nil
}

// GetRun loads one stored run's full replicate set.
func (s *BootstrapService) GetRun(ctx context.Context, runID core.RunID) (*boot.ReplicateSet, error) {
	return s.ledger.GetRun(ctx, runID)
}

// GetSummaries returns the cached summary rows for a stored run.
func (s *BootstrapService) GetSummaries(ctx context.Context, runID core.RunID) ([]boot.SeriesSummary, error) {
	return s.ledger.GetSummaries(ctx, runID)
}

// ListRuns lists stored run headers, newest first.
func (s *BootstrapService) ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error) {
	return s.ledger.ListRuns(ctx, filters)
}

// DeleteRun removes a stored run and its cached summaries.
func (s *BootstrapService) DeleteRun(ctx context.Context, runID core.RunID) error {
	return s.ledger.DeleteRun(ctx, runID)
}

// SourceProfile carries per-column shape diagnostics for one source.
type SourceProfile struct {
	Source  string                    `json:"source"`
	Columns []profiling.ColumnProfile `json:"columns"`
}

// ProfileSource loads a source and profiles every column, without
// resampling anything. Empty source falls back to the configured
// default, the same way Run does, and the result records which
// source was actually read.
func (s *BootstrapService) ProfileSource(ctx context.Context, source string) (*SourceProfile, error) {
	if source == "" {
		source = s.source
	}
	if source == "" {
		return nil, core.NewInvalidInputError("source", "no data file requested or configured")
	}
	ds, err := s.reader.Read(ctx, source)
	if err != nil {
		return nil, err
	}
	columns, err := profiling.ProfileDataset(ds)
	if err != nil {
		return nil, err
	}
	return &SourceProfile{Source: source, Columns: columns}, nil
}

// DescribeRun profiles each output series' replicate distribution.
// Series without enough usable replicates are omitted.
func (s *BootstrapService) DescribeRun(ctx context.Context, runID core.RunID) (map[string]boot.Profile, error) {
	set, err := s.ledger.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]boot.Profile, len(set.Outputs))
	for _, name := range set.Outputs {
		series, err := set.Series(name)
		if err != nil {
			return nil, err
		}
		profile, err := bootstrap.DescribeSeries(series)
		if err != nil {
			if core.IsInsufficientData(err) {
				continue
			}
			return nil, err
		}
		profiles[name] = profile
	}
	return profiles, nil
}
