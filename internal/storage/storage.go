package storage

import (
	"context"
	"errors"

	"cwstate/internal/model"
)

// Sink consumes the change batches produced by the watcher.
type Sink interface {
	PutChanges(ctx context.Context, batch model.ChangeBatch) error
}

// Multi fans a batch out to every sink in order.
type Multi []Sink

func (m Multi) PutChanges(ctx context.Context, batch model.ChangeBatch) error {
	var errs []error
	for _, s := range m {
		if err := s.PutChanges(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Split returns the individual sinks behind s, flattening nested Multi values.
func Split(s Sink) []Sink {
	m, ok := s.(Multi)
	if !ok {
		if s == nil {
			return nil
		}
		return []Sink{s}
	}
	var out []Sink
	for _, inner := range m {
		out = append(out, Split(inner)...)
	}
	return out
}
