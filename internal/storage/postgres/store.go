package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cwstate/internal/model"
	"cwstate/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS state_changes (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID        NOT NULL,
	contract    TEXT        NOT NULL,
	endpoint    TEXT        NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	seq         INT         NOT NULL,
	kind        TEXT        NOT NULL,
	key         BYTEA       NOT NULL,
	key_display TEXT        NOT NULL,
	old_value   BYTEA,
	new_value   BYTEA,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS state_changes_contract_observed_idx
	ON state_changes (contract, observed_at);
`

// Store appends change events to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Sink = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the state_changes table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutChanges inserts every event of the batch in one round trip.
func (s *Store) PutChanges(ctx context.Context, batch model.ChangeBatch) error {
	if len(batch.Events) == 0 {
		return nil
	}

	rows := insertRows(batch)
	b := &pgx.Batch{}
	for _, row := range rows {
		b.Queue(`
			INSERT INTO state_changes (
				run_id, contract, endpoint, observed_at, seq, kind, key, key_display, old_value, new_value
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, row...)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert state change: %w", err)
		}
	}
	return nil
}

// insertRows returns the positional arguments for each event. Absent values are
// NULL so that an empty value stays distinguishable from a missing one.
func insertRows(batch model.ChangeBatch) [][]any {
	records := storage.BuildRecords(batch)
	rows := make([][]any, 0, len(batch.Events))
	for i, ev := range batch.Events {
		var oldValue, newValue any
		if ev.Kind != model.Added {
			oldValue = nonNil(ev.OldValue)
		}
		if ev.Kind != model.Removed {
			newValue = nonNil(ev.NewValue)
		}
		rows = append(rows, []any{
			batch.RunID,
			batch.Contract,
			batch.Endpoint,
			batch.ObservedAt.UTC(),
			i,
			ev.Kind.String(),
			ev.Key,
			records[i].KeyDisplay,
			oldValue,
			newValue,
		})
	}
	return rows
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
