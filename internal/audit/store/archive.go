package store

import (
	"context"
	"database/sql"
	"fmt"

	"alumni/internal/audit"
	"alumni/pkg/platform/sqldialect"
	txcontext "alumni/pkg/platform/tx"
)

// Archive is the in-database cold copy of the ledger, one batch per day.
type Archive struct {
	base
	tx *txcontext.Runner
}

func NewArchive(db *sql.DB, dialect sqldialect.Dialect) *Archive {
	return &Archive{base: base{db: db, dialect: dialect}, tx: txcontext.NewRunner(db, 0)}
}

// CopyDay writes recs under day in one transaction, freezing each record's
// completion. Records already copied are skipped, so a retried day converges
// to the same content.
func (a *Archive) CopyDay(ctx context.Context, day string, recs []audit.MutationRecord) (int64, error) {
	query := a.dialect.Rebind(`INSERT INTO mutation_records_archive (` + recordColumns + `, http_status, latency_ms, archive_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)

	var copied int64
	err := a.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, rec := range recs {
			args, err := recordArgs(rec)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, query, append(args, rec.HTTPStatus, rec.LatencyMS, day)...)
			if err != nil {
				return fmt.Errorf("archive mutation record %s: %w", rec.ID, err)
			}
			n, _ := res.RowsAffected()
			copied += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return copied, nil
}

// CountDay returns how many records are archived under day.
func (a *Archive) CountDay(ctx context.Context, day string) (int64, error) {
	var n int64
	err := a.querier(ctx).QueryRowContext(ctx,
		a.dialect.Rebind(`SELECT COUNT(*) FROM mutation_records_archive WHERE archive_day = ?`), day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archived records: %w", err)
	}
	return n, nil
}
