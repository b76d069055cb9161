package coldstore

import (
	"context"
	"fmt"
	"time"

	"alumni/internal/audit"
)

// DayCopier is the in-database archive table.
type DayCopier interface {
	CopyDay(ctx context.Context, day string, recs []audit.MutationRecord) (int64, error)
}

// Table archives into mutation_records_archive in the primary database.
type Table struct {
	archive DayCopier
}

func NewTable(archive DayCopier) *Table {
	return &Table{archive: archive}
}

func (t *Table) Name() string { return "table" }

func (t *Table) Archive(ctx context.Context, day time.Time, recs []audit.MutationRecord) (string, error) {
	key := dayKey(day)
	if _, err := t.archive.CopyDay(ctx, key, recs); err != nil {
		return "", fmt.Errorf("copy %s to archive table: %w", key, err)
	}
	return "mutation_records_archive/" + key, nil
}
