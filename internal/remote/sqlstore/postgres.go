package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/collectr/collectr/internal/remote"
)

//go:embed schema_postgres.sql
var postgresSchema string

type postgresDialect struct{}

// Postgres returns the dialect for the pgx database/sql driver.
func Postgres() Dialect { return postgresDialect{} }

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (postgresDialect) LimitAll() string         { return "LIMIT ALL" }
func (postgresDialect) Value(v any) any          { return scanValue(v) }

// SQLSTATE class 23 codes.
var pgViolations = map[string]remote.Violation{
	"23503": remote.ViolationForeignKey,
	"23505": remote.ViolationUnique,
	"23502": remote.ViolationNotNull,
	"23514": remote.ViolationCheck,
}

func (postgresDialect) Violation(err error) remote.Violation {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgViolations[pgErr.Code]
	}
	return remote.ViolationNone
}

func (postgresDialect) Unreachable(err error) bool {
	if pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return New(db, Postgres(), logger, opts...), nil
}
