// Package store persists the governed entities. Every write runs inside a
// capture.Work so the row change and its audit record commit together.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"alumni/internal/audit"
	"alumni/internal/audit/capture"
	"alumni/pkg/platform/sentinel"
	"alumni/pkg/platform/sqldialect"
	txcontext "alumni/pkg/platform/tx"
)

type scanner interface {
	Scan(dest ...any) error
}

// mapper binds an entity type to its table. columns excludes the id.
type mapper[T any] struct {
	table   string
	columns []string
	values  func(*T) []any
	scan    func(scanner) (*T, error)
	id      func(*T) *int64
}

// Store is the table gateway for one entity type.
type Store[T any] struct {
	db      *sql.DB
	dialect sqldialect.Dialect
	m       mapper[T]
}

func (s *Store[T]) querier(ctx context.Context) sqldialect.Queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store[T]) selectSQL() string {
	return "SELECT id, " + strings.Join(s.m.columns, ", ") + " FROM " + s.m.table
}

// Create inserts v, sets its id and records the INSERT.
func (s *Store[T]) Create(ctx context.Context, w *capture.Work, v *T) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(s.m.columns)), ", ")
	query := s.dialect.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		s.m.table, strings.Join(s.m.columns, ", "), placeholders))

	if err := w.Tx().QueryRowContext(ctx, query, s.m.values(v)...).Scan(s.m.id(v)); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("insert %s: %w", s.m.table, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert %s: %w", s.m.table, err)
	}
	return w.Record(ctx, audit.OpInsert, s.m.table, nil, v)
}

// Get loads one row, joining the context's transaction when present.
func (s *Store[T]) Get(ctx context.Context, id int64) (*T, error) {
	return s.get(ctx, s.querier(ctx), id, "")
}

func (s *Store[T]) get(ctx context.Context, q sqldialect.Queryer, id int64, suffix string) (*T, error) {
	row := q.QueryRowContext(ctx, s.dialect.Rebind(s.selectSQL()+" WHERE id = ?"+suffix), id)
	v, err := s.m.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %d: %w", s.m.table, id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.m.table, err)
	}
	return v, nil
}

// List returns rows ordered by id.
func (s *Store[T]) List(ctx context.Context, limit, offset int) ([]*T, error) {
	if limit <= 0 || limit > audit.MaxLimit {
		limit = audit.DefaultLimit
	}
	rows, err := s.querier(ctx).QueryContext(ctx,
		s.dialect.Rebind(s.selectSQL()+" ORDER BY id LIMIT ? OFFSET ?"), limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.m.table, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		v, err := s.m.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.m.table, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Execute locks the row, runs validate against the current state, applies
// mutate to a copy, writes it back and records the UPDATE.
func (s *Store[T]) Execute(ctx context.Context, w *capture.Work, id int64, validate func(*T) error, mutate func(*T)) (*T, error) {
	before, err := s.get(ctx, w.Tx(), id, s.dialect.ForUpdate())
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(before); err != nil {
			return nil, err
		}
	}
	after := *before
	mutate(&after)
	*s.m.id(&after) = id

	sets := make([]string, len(s.m.columns))
	for i, c := range s.m.columns {
		sets[i] = c + " = ?"
	}
	args := append(s.m.values(&after), id)
	query := s.dialect.Rebind(fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", s.m.table, strings.Join(sets, ", ")))
	if _, err := w.Tx().ExecContext(ctx, query, args...); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("update %s: %w", s.m.table, sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("update %s: %w", s.m.table, err)
	}
	if err := w.Record(ctx, audit.OpUpdate, s.m.table, before, &after); err != nil {
		return nil, err
	}
	return &after, nil
}

// Delete removes the row and records the DELETE with its last state.
func (s *Store[T]) Delete(ctx context.Context, w *capture.Work, id int64) (*T, error) {
	before, err := s.get(ctx, w.Tx(), id, s.dialect.ForUpdate())
	if err != nil {
		return nil, err
	}
	if _, err := w.Tx().ExecContext(ctx, s.dialect.Rebind("DELETE FROM "+s.m.table+" WHERE id = ?"), id); err != nil {
		return nil, fmt.Errorf("delete %s: %w", s.m.table, err)
	}
	if err := w.Record(ctx, audit.OpDelete, s.m.table, before, nil); err != nil {
		return nil, err
	}
	return before, nil
}
