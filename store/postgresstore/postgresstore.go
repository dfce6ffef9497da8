// Package postgresstore adapts a Postgres table to store.Store, grounded on
// the teacher package's postgreslock backend (same caller-supplied *sql.DB,
// same INSERT ... ON CONFLICT style). The teacher's WHERE clause compares
// the TTL column against NOW(); this adapter instead conditions the UPDATE
// on an explicit (owner, version) match, since there is no shared clock to
// race against.
package postgresstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.companyinfo.dev/dynamolock/store"
)

// Store adapts a *sql.DB to store.Store. The caller is responsible for the
// table's schema and for supplying a driver (e.g. lib/pq, pgx's
// database/sql shim); this package never imports a driver directly.
type Store struct {
	db          *sql.DB
	table       string
	nameCol     string
	ownerCol    string
	versionCol  string
	durationCol string
	payloadCol  string
}

// Option customizes column names for an existing table schema.
type Option func(*Store)

// WithColumnNames overrides the default column names.
func WithColumnNames(name, owner, version, duration, payload string) Option {
	return func(s *Store) {
		s.nameCol, s.ownerCol, s.versionCol, s.durationCol, s.payloadCol = name, owner, version, duration, payload
	}
}

// New returns a Store backed by db against table.
func New(db *sql.DB, table string, opts ...Option) *Store {
	s := &Store{
		db: db, table: table,
		nameCol: "lock_name", ownerCol: "owner", versionCol: "version",
		durationCol: "duration_ms", payloadCol: "payload",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BackendName labels spans and metrics emitted against this store.
func (s *Store) BackendName() string { return "postgres" }

func (s *Store) Get(ctx context.Context, name string) (store.Item, error) {
	query := fmt.Sprintf(`SELECT %s, %s, %s, %s FROM %s WHERE %s = $1`,
		s.ownerCol, s.versionCol, s.durationCol, s.payloadCol, s.table, s.nameCol) // #nosec G201
	var item store.Item
	item.Name = name
	err := s.db.QueryRowContext(ctx, query, name).Scan(&item.Owner, &item.Version, &item.DurationMs, &item.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Item{}, store.ErrNotFound
	}
	if err != nil {
		return store.Item{}, fmt.Errorf("postgresstore: select: %w", err)
	}
	return item, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, item store.Item) (store.Outcome, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (%s) DO NOTHING`,
		s.table, s.nameCol, s.ownerCol, s.versionCol, s.durationCol, s.payloadCol, s.nameCol) // #nosec G201
	res, err := s.db.ExecContext(ctx, query, item.Name, item.Owner, item.Version, item.DurationMs, item.Payload)
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("postgresstore: insert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("postgresstore: rows affected: %w", err)
	}
	if rows == 0 {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) PutIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64, next store.Item) (store.Outcome, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = $4
		WHERE %s = $5 AND %s = $6 AND %s = $7`,
		s.table, s.ownerCol, s.versionCol, s.durationCol, s.payloadCol,
		s.nameCol, s.ownerCol, s.versionCol) // #nosec G201
	res, err := s.db.ExecContext(ctx, query,
		next.Owner, next.Version, next.DurationMs, next.Payload, name, expectedOwner, expectedVersion)
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("postgresstore: update: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("postgresstore: rows affected: %w", err)
	}
	if rows == 0 {
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}

func (s *Store) DeleteIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64) (store.Outcome, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2 AND %s = $3`,
		s.table, s.nameCol, s.ownerCol, s.versionCol) // #nosec G201
	res, err := s.db.ExecContext(ctx, query, name, expectedOwner, expectedVersion)
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("postgresstore: delete: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return store.OutcomeTransient, fmt.Errorf("postgresstore: rows affected: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.Get(ctx, name); errors.Is(getErr, store.ErrNotFound) {
			return store.OutcomeNotFound, nil
		}
		return store.OutcomeConflict, nil
	}
	return store.OutcomeOK, nil
}
