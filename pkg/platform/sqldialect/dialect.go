// Package sqldialect hides the few syntax differences between the Postgres
// production database and the embedded SQLite engine used for development
// and tests. Queries are written with ? placeholders and rebound per dialect.
package sqldialect

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Name identifies a supported dialect.
type Name string

const (
	Postgres Name = "postgres"
	SQLite   Name = "sqlite"
)

// Dialect describes the capabilities stores rely on.
type Dialect struct {
	name Name
}

// New parses a dialect name; unknown names fall back to Postgres.
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return Dialect{name: SQLite}
	default:
		return Dialect{name: Postgres}
	}
}

func (d Dialect) Name() Name { return d.name }

// Rebind converts ? placeholders to $n for Postgres. Question marks inside
// string literals are not supported.
func (d Dialect) Rebind(query string) string {
	if d.name != Postgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// ForUpdate returns the row-lock suffix for SELECT statements. SQLite takes a
// database-level write lock per transaction so the clause is empty there.
func (d Dialect) ForUpdate() string {
	if d.name == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// QuoteIdent quotes a table or column identifier. Both dialects use double quotes.
func (d Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// IsUniqueViolation reports whether err is a primary/unique key conflict.
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InClause renders "col IN (...)" for vals. Postgres binds the whole list as one
// array parameter; SQLite expands one placeholder per value. An empty list
// yields a predicate that matches nothing.
func (d Dialect) InClause(col string, vals []string) (string, []any) {
	if len(vals) == 0 {
		return "1 = 0", nil
	}
	if d.name == Postgres {
		return col + " = ANY(?)", []any{pq.Array(vals)}
	}
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return col + " IN (" + strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",") + ")", args
}

// Queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
