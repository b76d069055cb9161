//go:build integration

package coldstore_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni/internal/audit/retention/coldstore"
	"alumni/pkg/testutil/containers"
)

func TestPGArchiveCopiesDayOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.TruncateTables(ctx, "mutation_records_archive"))

	cold, err := coldstore.NewPGArchive(ctx, pg.URL)
	require.NoError(t, err)
	t.Cleanup(cold.Close)

	recs := records(3)
	loc, err := cold.Archive(ctx, archiveDay, recs)
	require.NoError(t, err)
	assert.Equal(t, "pgarchive:mutation_records_archive/2024-06-01", loc)
	_, err = cold.Archive(ctx, archiveDay, recs)
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pg.URL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	var n int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM mutation_records_archive WHERE archive_day = $1`, "2024-06-01").Scan(&n))
	assert.Equal(t, 3, n)

	var name string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT new_image->>'nama' FROM mutation_records_archive WHERE id = $1`, recs[0].ID).Scan(&name))
	assert.Equal(t, "Bank Seed A2", name)
}
