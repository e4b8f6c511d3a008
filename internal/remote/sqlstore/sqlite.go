package sqlstore

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/collectr/collectr/internal/remote"

	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

type sqliteDialect struct{}

// SQLite returns the dialect for modernc.org/sqlite.
func SQLite() Dialect { return sqliteDialect{} }

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) LimitAll() string       { return "LIMIT -1" }
func (sqliteDialect) Value(v any) any        { return scanValue(v) }

var sqliteViolations = []struct {
	text      string
	violation remote.Violation
}{
	{"FOREIGN KEY constraint failed", remote.ViolationForeignKey},
	{"UNIQUE constraint failed", remote.ViolationUnique},
	{"NOT NULL constraint failed", remote.ViolationNotNull},
	{"CHECK constraint failed", remote.ViolationCheck},
}

func (sqliteDialect) Violation(err error) remote.Violation {
	msg := err.Error()
	for _, v := range sqliteViolations {
		if strings.Contains(msg, v.text) {
			return v.violation
		}
	}
	return remote.ViolationNone
}

func (sqliteDialect) Unreachable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "unable to open database file")
}

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// OpenSQLite opens (or creates) the database at path. It configures WAL mode,
// sets pragmas and applies the schema.
func OpenSQLite(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	params := make(url.Values)
	for _, p := range sqlitePragmas {
		params.Add("_pragma", p)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return New(db, SQLite(), logger, opts...), nil
}
