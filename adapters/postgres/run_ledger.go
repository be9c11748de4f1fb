package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"goboot/domain/boot"
	"goboot/domain/core"
	"goboot/ports"
)

// RunLedger persists replicate sets and their derived summaries. The
// replicate set is the authoritative record; summary rows are a cached
// projection and can always be recomputed.
type RunLedger struct {
	db *sqlx.DB
}

// NewRunLedger creates a run ledger backed by the given database.
func NewRunLedger(db *sqlx.DB) *RunLedger {
	return &RunLedger{db: db}
}

// StoreRun appends one run's replicate set to the ledger. Sets that fail
// structural validation are refused.
func (r *RunLedger) StoreRun(ctx context.Context, set *boot.ReplicateSet) error {
	if set == nil {
		return core.NewInvalidInputError("set", "replicate set cannot be nil")
	}
	if err := set.Validate(); err != nil {
		return fmt.Errorf("refusing to store invalid replicate set: %w", err)
	}

	outputsJSON, err := json.Marshal(set.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}
	replicatesJSON, err := json.Marshal(set.Replicates)
	if err != nil {
		return fmt.Errorf("failed to marshal replicates: %w", err)
	}

	query := `
		INSERT INTO boot_runs (
			run_id, estimator, outputs, requested, seed, replicates,
			partial, completed, usable, fingerprint, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, query,
		set.RunID.String(),
		set.Estimator,
		outputsJSON,
		set.Requested,
		set.Seed,
		replicatesJSON,
		set.Partial,
		set.Completed(),
		set.Usable(),
		set.Fingerprint.String(),
		set.CreatedAt.Time(),
	)
	if err != nil {
		return fmt.Errorf("failed to store run %s: %w", set.RunID, err)
	}
	return nil
}

// StoreSummaries upserts the summary rows for a run. Re-summarizing a
// run with a different confidence level replaces the cached rows.
func (r *RunLedger) StoreSummaries(ctx context.Context, runID core.RunID, summaries []boot.SeriesSummary) error {
	query := `
		INSERT INTO boot_summaries (
			run_id, name, estimate_mean, std_error, ci_lower, ci_upper,
			p_value, usable, missing, series_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, name) DO UPDATE SET
			estimate_mean = EXCLUDED.estimate_mean,
			std_error = EXCLUDED.std_error,
			ci_lower = EXCLUDED.ci_lower,
			ci_upper = EXCLUDED.ci_upper,
			p_value = EXCLUDED.p_value,
			usable = EXCLUDED.usable,
			missing = EXCLUDED.missing,
			series_error = EXCLUDED.series_error`

	for _, s := range summaries {
		var seriesErr sql.NullString
		if s.Err != nil {
			seriesErr = sql.NullString{String: s.Err.Error(), Valid: true}
		}
		_, err := r.db.ExecContext(ctx, query,
			runID.String(),
			s.Name,
			s.Mean,
			s.StdError,
			s.CILower,
			s.CIUpper,
			s.PValue,
			s.Usable,
			s.Missing,
			seriesErr,
		)
		if err != nil {
			return fmt.Errorf("failed to store summary %s for run %s: %w", s.Name, runID, err)
		}
	}
	return nil
}

// GetRun loads one run's full replicate set.
func (r *RunLedger) GetRun(ctx context.Context, runID core.RunID) (*boot.ReplicateSet, error) {
	query := `
		SELECT run_id, estimator, outputs, requested, seed, replicates,
			   partial, fingerprint, created_at
		FROM boot_runs
		WHERE run_id = $1`

	var (
		set            boot.ReplicateSet
		id             string
		fingerprint    string
		outputsJSON    []byte
		replicatesJSON []byte
		createdAt      time.Time
	)
	err := r.db.QueryRowContext(ctx, query, runID.String()).Scan(
		&id,
		&set.Estimator,
		&outputsJSON,
		&set.Requested,
		&set.Seed,
		&replicatesJSON,
		&set.Partial,
		&fingerprint,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	set.RunID = core.RunID(id)
	set.Fingerprint = core.Hash(fingerprint)
	set.CreatedAt = core.Timestamp(createdAt)
	if err := json.Unmarshal(outputsJSON, &set.Outputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outputs for run %s: %w", runID, err)
	}
	if err := json.Unmarshal(replicatesJSON, &set.Replicates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal replicates for run %s: %w", runID, err)
	}
	return &set, nil
}

// GetSummaries loads the cached summary rows for a run, in series name
// order. A run with no cached rows yields an empty slice, not an error.
func (r *RunLedger) GetSummaries(ctx context.Context, runID core.RunID) ([]boot.SeriesSummary, error) {
	query := `
		SELECT name, estimate_mean, std_error, ci_lower, ci_upper,
			   p_value, usable, missing, series_error
		FROM boot_summaries
		WHERE run_id = $1
		ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries for run %s: %w", runID, err)
	}
	defer rows.Close()

	var summaries []boot.SeriesSummary
	for rows.Next() {
		var s boot.SeriesSummary
		var seriesErr sql.NullString
		err := rows.Scan(
			&s.Name,
			&s.Mean,
			&s.StdError,
			&s.CILower,
			&s.CIUpper,
			&s.PValue,
			&s.Usable,
			&s.Missing,
			&seriesErr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		if seriesErr.Valid {
			s.Err = errors.New(seriesErr.String)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ListRuns returns run headers matching the filters, newest first. The
// replicate payload is never loaded here.
func (r *RunLedger) ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error) {
	var conditions []string
	var args []interface{}

	if filters.Estimator != nil {
		args = append(args, *filters.Estimator)
		conditions = append(conditions, fmt.Sprintf("estimator = $%d", len(args)))
	}
	if filters.Partial != nil {
		args = append(args, *filters.Partial)
		conditions = append(conditions, fmt.Sprintf("partial = $%d", len(args)))
	}

	query := `
		SELECT run_id, estimator, requested, completed, usable, partial, seed, created_at
		FROM boot_runs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []ports.RunSummary
	for rows.Next() {
		var (
			summary   ports.RunSummary
			id        string
			createdAt time.Time
		)
		err := rows.Scan(
			&id,
			&summary.Estimator,
			&summary.Requested,
			&summary.Completed,
			&summary.Usable,
			&summary.Partial,
			&summary.Seed,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		summary.RunID = core.RunID(id)
		summary.CreatedAt = core.Timestamp(createdAt)
		runs = append(runs, summary)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its cached summaries. Used by retention
// cleanup, never by the run lifecycle itself.
func (r *RunLedger) DeleteRun(ctx context.Context, runID core.RunID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM boot_runs WHERE run_id = $1`, runID.String())
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return nil
}
