package models

import (
	"context"
	"errors"
)

var (
	// ErrInvalidInput marks a row whose market inputs cannot be solved.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState is returned when metrics are derived from an unconverged solve.
	ErrInvalidState = errors.New("invalid state")
	// ErrInsufficientHistory marks a lookback window that is too short.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrInvalidConfig aborts a whole batch.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrTimeout marks a ticker-day bundle that exceeded its time budget.
	ErrTimeout = errors.New("bundle timeout")
)

// FailureKind classifies a row-scoped failure.
type FailureKind string

const (
	FailureInvalidInput        FailureKind = "invalid_input"
	FailureConvergence         FailureKind = "convergence_failure"
	FailureInsufficientHistory FailureKind = "insufficient_history"
	FailureDegradedEstimate    FailureKind = "degraded_estimate"
	FailureTimeout             FailureKind = "timeout"
	FailureInternal            FailureKind = "internal"
)

// ClassifyError maps an error returned while processing a row to its failure kind.
func ClassifyError(err error) FailureKind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return FailureInvalidInput
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrInsufficientHistory):
		return FailureInsufficientHistory
	default:
		return FailureInternal
	}
}
