package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"goboot/domain/boot"
	"goboot/domain/core"
	"goboot/ports"
)

// RunLedger keeps replicate sets and summaries in process memory. It
// backs deployments that run without a DATABASE_URL, and the test kit.
// Contents do not survive a restart.
type RunLedger struct {
	runs      map[core.RunID]*boot.ReplicateSet
	summaries map[core.RunID][]boot.SeriesSummary
	order     []core.RunID
	mu        sync.RWMutex
}

// NewRunLedger creates an empty in-memory ledger.
func NewRunLedger() *RunLedger {
	return &RunLedger{
		runs:      make(map[core.RunID]*boot.ReplicateSet),
		summaries: make(map[core.RunID][]boot.SeriesSummary),
	}
}

// StoreRun stores a replicate set, applying the same validation the
// Postgres ledger does.
func (l *RunLedger) StoreRun(ctx context.Context, set *boot.ReplicateSet) error {
	if set == nil {
		return core.NewInvalidInputError("set", "replicate set cannot be nil")
	}
	if err := set.Validate(); err != nil {
		return fmt.Errorf("refusing to store invalid replicate set: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.runs[set.RunID]; !exists {
		l.order = append(l.order, set.RunID)
	}
	l.runs[set.RunID] = set
	return nil
}

// StoreSummaries replaces the cached summary rows for a run.
func (l *RunLedger) StoreSummaries(ctx context.Context, runID core.RunID, summaries []boot.SeriesSummary) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summaries[runID] = append([]boot.SeriesSummary(nil), summaries...)
	return nil
}

// GetRun retrieves a stored replicate set by run ID.
func (l *RunLedger) GetRun(ctx context.Context, runID core.RunID) (*boot.ReplicateSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	set, exists := l.runs[runID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return set, nil
}

// GetSummaries retrieves the cached summary rows for a run.
func (l *RunLedger) GetSummaries(ctx context.Context, runID core.RunID) ([]boot.SeriesSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]boot.SeriesSummary(nil), l.summaries[runID]...), nil
}

// ListRuns returns run metadata newest first, honoring the same filter,
// offset, and default-limit semantics as the Postgres ledger.
func (l *RunLedger) ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []ports.RunSummary
	for _, id := range l.order {
		set := l.runs[id]
		if filters.Estimator != nil && set.Estimator != *filters.Estimator {
			continue
		}
		if filters.Partial != nil && set.Partial != *filters.Partial {
			continue
		}
		matched = append(matched, ports.RunSummary{
			RunID:     set.RunID,
			Estimator: set.Estimator,
			Requested: set.Requested,
			Completed: set.Completed(),
			Usable:    set.Usable(),
			Partial:   set.Partial,
			Seed:      set.Seed,
			CreatedAt: set.CreatedAt,
		})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[j].CreatedAt.Before(matched[i].CreatedAt)
	})

	offset := filters.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// DeleteRun removes a run and its cached summaries.
func (l *RunLedger) DeleteRun(ctx context.Context, runID core.RunID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.runs[runID]; !exists {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	delete(l.runs, runID)
	delete(l.summaries, runID)
	for i, id := range l.order {
		if id == runID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// RunCount reports the number of stored runs.
func (l *RunLedger) RunCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.runs)
}
