package store

import (
	"context"
	"database/sql"
	"fmt"

	"alumni/internal/audit"
	"alumni/pkg/platform/sqldialect"
)

const executionColumns = `id, executed_at, actor_id, actor_label, table_name, row_key, source_snapshot_id,
	snapshot_side, session_id, request_id, note`

// Executions is the append-only store of RestoreExecutionRecords.
type Executions struct {
	base
}

func NewExecutions(db *sql.DB, dialect sqldialect.Dialect) *Executions {
	return &Executions{base{db: db, dialect: dialect}}
}

// Append inserts rec using q, the restore transaction.
func (e *Executions) Append(ctx context.Context, q sqldialect.Queryer, rec audit.RestoreExecutionRecord) error {
	_, err := q.ExecContext(ctx, e.dialect.Rebind(`INSERT INTO restore_executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, audit.Timestamp(rec.ExecutedAt), rec.Actor.ID, rec.Actor.Label, rec.TableName, rec.RowKey,
		rec.SourceSnapshotID, string(rec.SnapshotSide), rec.SessionID, rec.RequestID, rec.Note)
	if err != nil {
		return fmt.Errorf("insert restore execution: %w", err)
	}
	return nil
}

// ListByRow returns the restores applied to one row, newest first.
func (e *Executions) ListByRow(ctx context.Context, table, rowKey string) ([]audit.RestoreExecutionRecord, error) {
	rows, err := e.querier(ctx).QueryContext(ctx, e.dialect.Rebind(`SELECT `+executionColumns+` FROM restore_executions
		WHERE table_name = ? AND row_key = ? ORDER BY executed_at DESC, id DESC`), table, rowKey)
	if err != nil {
		return nil, fmt.Errorf("query restore executions: %w", err)
	}
	defer rows.Close()

	var out []audit.RestoreExecutionRecord
	for rows.Next() {
		var (
			rec  audit.RestoreExecutionRecord
			side string
		)
		if err := rows.Scan(&rec.ID, &rec.ExecutedAt, &rec.Actor.ID, &rec.Actor.Label, &rec.TableName, &rec.RowKey,
			&rec.SourceSnapshotID, &side, &rec.SessionID, &rec.RequestID, &rec.Note); err != nil {
			return nil, fmt.Errorf("scan restore execution: %w", err)
		}
		rec.ExecutedAt = utc(rec.ExecutedAt)
		rec.SnapshotSide = audit.SnapshotSide(side)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restore executions: %w", err)
	}
	return out, nil
}
