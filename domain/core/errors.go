package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound          = errors.New("resource not found")
	ErrRunNotFound       = fmt.Errorf("%w: run", ErrNotFound)
	ErrColumnNotFound    = fmt.Errorf("%w: column", ErrNotFound)
	ErrEstimatorNotFound = fmt.Errorf("%w: estimator", ErrNotFound)

	// Input validation errors - fail fast before any resampling begins
	ErrInvalidInput = errors.New("invalid input")

	// Replicate-level errors - absorbed per resample, never abort a run
	ErrEstimatorFailure = errors.New("estimator failed")
	ErrTimeout          = errors.New("estimator invocation timed out")

	// Series-level errors - surfaced per named series, not fatal to siblings
	ErrInsufficientData = errors.New("insufficient data for analysis")

	// Run-level errors
	ErrCancelled = errors.New("run cancelled")

	// Determinism errors
	ErrSeedMismatch = errors.New("seed mismatch")
	ErrHashMismatch = errors.New("hash mismatch")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewInvalidInputError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, field, reason)
}

func NewEstimatorError(estimator string, resampleID int, err error) error {
	return fmt.Errorf("%w: %s on resample %d: %v", ErrEstimatorFailure, estimator, resampleID, err)
}

func NewInsufficientDataError(series string, usable int) error {
	return fmt.Errorf("%w: series %s has %d usable replicates, need at least 2", ErrInsufficientData, series, usable)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsReplicateFailure reports whether an error is absorbed as a missing
// replicate rather than propagated. Timeouts are treated identically to
// estimator failures.
func IsReplicateFailure(err error) bool {
	return errors.Is(err, ErrEstimatorFailure) ||
		errors.Is(err, ErrTimeout)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func IsDeterminismError(err error) bool {
	return errors.Is(err, ErrSeedMismatch) ||
		errors.Is(err, ErrHashMismatch)
}
