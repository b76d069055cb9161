// Package database opens the SQL handle shared by business and audit stores
// and bootstraps the tables they need.
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"alumni/internal/platform/config"
	"alumni/pkg/platform/sqldialect"
)

//go:embed schema_postgres.sql
var schemaPostgres string

//go:embed schema_sqlite.sql
var schemaSQLite string

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, sqldialect.Dialect, error) {
	dialect := sqldialect.New(cfg.Driver)
	driver := "postgres"
	if dialect.Name() == sqldialect.SQLite {
		driver = "sqlite"
	}

	db, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, dialect, fmt.Errorf("open %s: %w", driver, err)
	}

	if dialect.Name() == sqldialect.SQLite {
		// One writer at a time; a single connection also keeps in-memory databases alive.
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dialect, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, dialect, nil
}

// Bootstrap creates missing tables and indexes. It never alters existing ones.
func Bootstrap(ctx context.Context, db *sql.DB, dialect sqldialect.Dialect) error {
	schema := schemaPostgres
	if dialect.Name() == sqldialect.SQLite {
		schema = schemaSQLite
	}
	for _, stmt := range Statements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

// Statements splits a schema script on semicolons, dropping comments and blanks.
func Statements(script string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(cur.String()), ";")))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}
