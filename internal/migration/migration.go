package migration

import (
	"context"
	"fmt"

	"goboot/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create boot_runs table")
	}

	if err := r.createSummariesTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create boot_summaries table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

// createRunsTable holds one row per run. The replicate payload lives in
// a JSONB column; completed and usable counts are denormalized so run
// listings never parse it.
func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS boot_runs (
			run_id TEXT PRIMARY KEY,
			estimator TEXT NOT NULL,
			outputs JSONB NOT NULL,
			requested INTEGER NOT NULL,
			seed BIGINT NOT NULL,
			replicates JSONB NOT NULL,
			partial BOOLEAN NOT NULL DEFAULT false,
			completed INTEGER NOT NULL,
			usable INTEGER NOT NULL,
			fingerprint TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createSummariesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS boot_summaries (
			run_id TEXT NOT NULL REFERENCES boot_runs(run_id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			estimate_mean DOUBLE PRECISION NOT NULL,
			std_error DOUBLE PRECISION NOT NULL,
			ci_lower DOUBLE PRECISION NOT NULL,
			ci_upper DOUBLE PRECISION NOT NULL,
			p_value DOUBLE PRECISION NOT NULL,
			usable INTEGER NOT NULL,
			missing INTEGER NOT NULL,
			series_error TEXT,
			PRIMARY KEY (run_id, name)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_estimator ON boot_runs(estimator)",
		"CREATE INDEX IF NOT EXISTS idx_runs_created_at ON boot_runs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_runs_partial ON boot_runs(partial)",
		"CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON boot_runs(fingerprint)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			// Log but don't fail on index creation errors
			fmt.Printf("Warning: failed to create index: %v\n", err)
		}
	}

	return nil
}
