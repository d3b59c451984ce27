package repository

import (
	"context"
	"errors"

	"CreditPulse/internal/domain/models"
	domrepo "CreditPulse/internal/domain/repository"
)

// MultiSink fans every fact out to all sinks. Each sink is attempted even
// when an earlier one fails; the errors are joined.
type MultiSink struct {
	sinks []domrepo.ResultSink
}

var _ domrepo.ResultSink = (*MultiSink)(nil)

func NewMultiSink(sinks ...domrepo.ResultSink) *MultiSink {
	out := make([]domrepo.ResultSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (m *MultiSink) Append(ctx context.Context, b *models.AnalysisBundle) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Append(ctx, b))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordFailure(ctx context.Context, f models.RowFailure) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.RecordFailure(ctx, f))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
