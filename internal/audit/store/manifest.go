package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"alumni/internal/audit"
	"alumni/pkg/platform/sqldialect"
)

// DayLayout formats archive day keys.
const DayLayout = "2006-01-02"

// ArchivedDay is one manifest entry: a UTC day copied to cold storage.
type ArchivedDay struct {
	Day         string
	Target      string
	Location    string
	RecordCount int64
	ArchivedAt  time.Time
}

// Manifest tracks which ledger days reached cold storage.
type Manifest struct {
	base
}

func NewManifest(db *sql.DB, dialect sqldialect.Dialect) *Manifest {
	return &Manifest{base{db: db, dialect: dialect}}
}

// Mark records a day as archived. Re-marking a day keeps the first entry.
func (m *Manifest) Mark(ctx context.Context, d ArchivedDay) error {
	_, err := m.querier(ctx).ExecContext(ctx, m.dialect.Rebind(`
		INSERT INTO archive_days (day, target, location, record_count, archived_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (day) DO NOTHING`),
		d.Day, d.Target, d.Location, d.RecordCount, audit.Timestamp(d.ArchivedAt))
	if err != nil {
		return fmt.Errorf("insert archive day: %w", err)
	}
	return nil
}

// Days returns the archived day keys as a set.
func (m *Manifest) Days(ctx context.Context) (map[string]ArchivedDay, error) {
	rows, err := m.querier(ctx).QueryContext(ctx,
		`SELECT day, target, location, record_count, archived_at FROM archive_days ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("query archive days: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ArchivedDay)
	for rows.Next() {
		var d ArchivedDay
		if err := rows.Scan(&d.Day, &d.Target, &d.Location, &d.RecordCount, &d.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan archive day: %w", err)
		}
		d.ArchivedAt = utc(d.ArchivedAt)
		out[d.Day] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive days: %w", err)
	}
	return out, nil
}
