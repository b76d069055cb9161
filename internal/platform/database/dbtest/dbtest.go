// Package dbtest provides an in-process SQLite database with the full schema
// for tests that need real transactions.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"alumni/internal/platform/config"
	"alumni/internal/platform/database"
	"alumni/pkg/platform/sqldialect"
)

// New opens a private in-memory database, bootstraps it and closes it when
// the test ends.
func New(t testing.TB) (*sql.DB, sqldialect.Dialect) {
	t.Helper()

	ctx := context.Background()
	db, dialect, err := database.Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		URL:    "file:" + uuid.NewString() + "?mode=memory&cache=private&_pragma=foreign_keys(1)",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Bootstrap(ctx, db, dialect))
	return db, dialect
}

// Count returns the number of rows in table.
func Count(t testing.TB, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
