// Package sqlstore implements remote.Store on top of database/sql. The SQLite and
// Postgres backends share the statement builder and differ only in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/collectr/collectr/internal/remote"
)

var _ remote.Store = (*Store)(nil)

// Store is a SQL-backed remote.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds every operation. A timed out operation is reported as
// unreachable.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:      db,
		dialect: dialect,
		logger:  logger.With("component", "remote", "dialect", dialect.Name()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying database for fixtures and inspection.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Shutdown implements do.Shutdowner.
func (s *Store) Shutdown() error {
	return s.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return s.fail("ping", "", err)
	}
	return nil
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// Select returns the rows of table matching q.
func (s *Store) Select(ctx context.Context, table string, q remote.Query) ([]remote.Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	b := newBuilder(s.dialect)
	b.write("SELECT * FROM ", table)
	if err := b.where(q.Filters); err != nil {
		return nil, err
	}
	if err := b.orderAndPage(q); err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.query(ctx, "select", table, b)
}

// Count returns the number of rows of table matching filters.
func (s *Store) Count(ctx context.Context, table string, filters ...remote.Filter) (int, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	b := newBuilder(s.dialect)
	b.write("SELECT count(*) FROM ", table)
	if err := b.where(filters); err != nil {
		return 0, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	var n int
	if err := s.db.QueryRowContext(ctx, b.String(), b.args...).Scan(&n); err != nil {
		return 0, s.fail("count", table, err)
	}
	return n, nil
}

// Insert stores row and returns the persisted row.
func (s *Store) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	b := newBuilder(s.dialect)
	b.write("INSERT INTO ", table)
	if len(row) == 0 {
		b.write(" DEFAULT VALUES")
	} else {
		cols := sortedColumns(row)
		holders := make([]string, len(cols))
		for i, col := range cols {
			if err := checkIdent(col); err != nil {
				return nil, err
			}
			ph, err := b.bind(row[col])
			if err != nil {
				return nil, fmt.Errorf("bind %s: %w", col, err)
			}
			holders[i] = ph
		}
		b.write(" (", strings.Join(cols, ", "), ") VALUES (", strings.Join(holders, ", "), ")")
	}
	b.write(" RETURNING *")

	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.query(ctx, "insert", table, b)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, remote.Rejected("insert", table, remote.ViolationNone,
			fmt.Errorf("insert returned %d rows", len(rows)))
	}
	s.logger.Debug("row inserted", "table", table)
	return rows[0], nil
}

// Update applies patch to the row with the given id.
func (s *Store) Update(ctx context.Context, table string, id int64, patch remote.Row) (remote.Row, error) {
	if len(patch) == 0 {
		rows, err := s.Select(ctx, table, remote.Where(remote.Eq("id", id)))
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, remote.NotFound("update", table, id)
		}
		return rows[0], nil
	}

	rows, err := s.update(ctx, table, []remote.Filter{remote.Eq("id", id)}, patch)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, remote.NotFound("update", table, id)
	}
	s.logger.Debug("row updated", "table", table, "id", id, "columns", len(patch))
	return rows[0], nil
}

// UpdateWhere applies patch to every row whose columns equal match.
func (s *Store) UpdateWhere(ctx context.Context, table string, match, patch remote.Row) ([]remote.Row, error) {
	if len(match) == 0 {
		return nil, fmt.Errorf("update %s: refusing to update without a match", table)
	}
	if len(patch) == 0 {
		return s.Select(ctx, table, remote.Where(matchFilters(match)...))
	}
	return s.update(ctx, table, matchFilters(match), patch)
}

func (s *Store) update(ctx context.Context, table string, filters []remote.Filter, patch remote.Row) ([]remote.Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	b := newBuilder(s.dialect)
	b.write("UPDATE ", table, " SET ")
	if err := b.assignments(patch); err != nil {
		return nil, err
	}
	if err := b.where(filters); err != nil {
		return nil, err
	}
	b.write(" RETURNING *")

	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.query(ctx, "update", table, b)
}

// Delete removes the row with the given id.
func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	n, err := s.delete(ctx, table, []remote.Filter{remote.Eq("id", id)})
	if err != nil {
		return err
	}
	if n == 0 {
		return remote.NotFound("delete", table, id)
	}
	s.logger.Debug("row deleted", "table", table, "id", id)
	return nil
}

// DeleteWhere removes every row whose columns equal match.
func (s *Store) DeleteWhere(ctx context.Context, table string, match remote.Row) (int64, error) {
	if len(match) == 0 {
		return 0, fmt.Errorf("delete %s: refusing to delete without a match", table)
	}
	return s.delete(ctx, table, matchFilters(match))
}

func (s *Store) delete(ctx context.Context, table string, filters []remote.Filter) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	b := newBuilder(s.dialect)
	b.write("DELETE FROM ", table)
	if err := b.where(filters); err != nil {
		return 0, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, b.String(), b.args...)
	if err != nil {
		return 0, s.fail("delete", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.fail("delete", table, err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, op, table string, b *builder) ([]remote.Row, error) {
	rows, err := s.db.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, s.fail(op, table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, s.fail(op, table, err)
	}

	out := make([]remote.Row, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, s.fail(op, table, err)
		}
		row := make(remote.Row, len(cols))
		for i, col := range cols {
			row[col] = s.dialect.Value(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(op, table, err)
	}
	return out, nil
}

// fail converts a driver error into a *remote.Error.
func (s *Store) fail(op, table string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		s.dialect.Unreachable(err):
		s.logger.Warn("remote unreachable", "op", op, "table", table, "error", err)
		return remote.Unreachable(op, table, err)
	}

	v := s.dialect.Violation(err)
	s.logger.Debug("remote rejected", "op", op, "table", table, "violation", string(v), "error", err)
	return remote.Rejected(op, table, v, err)
}
