// Package runlog persists the append-only stream of run records and the
// final exploration summary for the reporting tools.
package runlog

import (
	"context"
	"errors"

	"github.com/bbque-tools/dse/internal/domain"
)

// Sink receives run records in sequence order and one summary at the end.
type Sink interface {
	Append(ctx context.Context, record domain.RunRecord) error
	Close(ctx context.Context, summary domain.Summary) error
}

// Multi fans records out to every sink. A failing sink does not stop the
// others; errors are joined.
type Multi []Sink

func (m Multi) Append(ctx context.Context, record domain.RunRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close(ctx context.Context, summary domain.Summary) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything; used by complexity-only explorations.
type Discard struct{}

func (Discard) Append(context.Context, domain.RunRecord) error { return nil }

func (Discard) Close(context.Context, domain.Summary) error { return nil }
