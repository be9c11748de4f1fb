package ports

import (
	"context"

	"goboot/domain/boot"
	"goboot/domain/core"
)

// RunWriterPort provides append-only write access to run records.
// This is the ONLY way to persist a replicate set - prevents
// read-after-write coupling between services.
type RunWriterPort interface {
	StoreRun(ctx context.Context, set *boot.ReplicateSet) error
	StoreSummaries(ctx context.Context, runID core.RunID, summaries []boot.SeriesSummary) error
}

// RunReaderPort provides read-only access to stored runs.
// Use this for queries, replay, and UI/API access.
type RunReaderPort interface {
	GetRun(ctx context.Context, runID core.RunID) (*boot.ReplicateSet, error)
	GetSummaries(ctx context.Context, runID core.RunID) ([]boot.SeriesSummary, error)
	ListRuns(ctx context.Context, filters RunFilters) ([]RunSummary, error)
}

// RunFilters for querying runs
type RunFilters struct {
	Estimator *string
	Partial   *bool
	Limit     int
	Offset    int
}

// RunSummary is a read model for run listings.
type RunSummary struct {
	RunID     core.RunID     `json:"run_id"`
	Estimator string         `json:"estimator"`
	Requested int            `json:"requested"`
	Completed int            `json:"completed"`
	Usable    int            `json:"usable"`
	Partial   bool           `json:"partial"`
	Seed      int64          `json:"seed"`
	CreatedAt core.Timestamp `json:"created_at"`
}

// RunJanitorPort removes stored runs. Kept separate from the writer so
// append-only consumers cannot touch history.
type RunJanitorPort interface {
	DeleteRun(ctx context.Context, runID core.RunID) error
}

// RunLedgerPort combines read, write, and delete access for services
// that own the full run lifecycle.
type RunLedgerPort interface {
	RunWriterPort
	RunReaderPort
	RunJanitorPort
}
