package catalog

import (
	"context"
	"errors"
)

// Sink stores catalog records. Append reports false when the record was a
// duplicate.
type Sink interface {
	Append(ctx context.Context, rec Record) (bool, error)
}

// MultiSink appends to a primary sink and mirrors new records to the others.
// Only the primary decides whether a record is new.
type MultiSink struct {
	Primary Sink
	Mirrors []Sink
}

func (m MultiSink) Append(ctx context.Context, rec Record) (bool, error) {
	written, err := m.Primary.Append(ctx, rec)
	if err != nil || !written {
		return written, err
	}

	var errs []error
	for _, mirror := range m.Mirrors {
		if _, err := mirror.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}
