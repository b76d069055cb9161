package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"alumni/internal/audit"
	"alumni/pkg/platform/sentinel"
	"alumni/pkg/platform/sqldialect"
)

const snapshotColumns = `id, mutation_id, occurred_at, table_name, operation, row_key, old_image, new_image,
	actor_id, actor_label, request_id`

// Backups is the append-only store of RowSnapshots.
type Backups struct {
	base
}

func NewBackups(db *sql.DB, dialect sqldialect.Dialect) *Backups {
	return &Backups{base{db: db, dialect: dialect}}
}

// Append inserts snap using q, normally the business transaction.
func (b *Backups) Append(ctx context.Context, q sqldialect.Queryer, snap audit.RowSnapshot) error {
	oldImg, err := jsonArg(snap.OldImage)
	if err != nil {
		return err
	}
	newImg, err := jsonArg(snap.NewImage)
	if err != nil {
		return err
	}
	query := `INSERT INTO row_snapshots (` + snapshotColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = q.ExecContext(ctx, b.dialect.Rebind(query),
		snap.ID, snap.MutationID, audit.Timestamp(snap.OccurredAt), snap.TableName, string(snap.Operation), snap.RowKey,
		oldImg, newImg, snap.Actor.ID, snap.Actor.Label, snap.RequestID)
	if err != nil {
		return fmt.Errorf("insert row snapshot: %w", err)
	}
	return nil
}

func scanSnapshot(s scanner) (audit.RowSnapshot, error) {
	var (
		snap           audit.RowSnapshot
		op             string
		oldImg, newImg []byte
	)
	err := s.Scan(&snap.ID, &snap.MutationID, &snap.OccurredAt, &snap.TableName, &op, &snap.RowKey,
		&oldImg, &newImg, &snap.Actor.ID, &snap.Actor.Label, &snap.RequestID)
	if err != nil {
		return snap, err
	}
	snap.OccurredAt = utc(snap.OccurredAt)
	snap.Operation = audit.Operation(op)
	if snap.OldImage, err = audit.UnmarshalImage(oldImg); err != nil {
		return snap, err
	}
	if snap.NewImage, err = audit.UnmarshalImage(newImg); err != nil {
		return snap, err
	}
	return snap, nil
}

// Get loads one snapshot through q. Snapshots are immutable so no lock is taken.
func (b *Backups) Get(ctx context.Context, q sqldialect.Queryer, id uuid.UUID) (audit.RowSnapshot, error) {
	if q == nil {
		q = b.querier(ctx)
	}
	row := q.QueryRowContext(ctx, b.dialect.Rebind(`SELECT `+snapshotColumns+` FROM row_snapshots WHERE id = ?`), id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.RowSnapshot{}, fmt.Errorf("row snapshot %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return audit.RowSnapshot{}, fmt.Errorf("get row snapshot: %w", err)
	}
	return snap, nil
}

// ListByRow returns the snapshots of one row, newest first.
func (b *Backups) ListByRow(ctx context.Context, table, rowKey string, limit int) ([]audit.RowSnapshot, error) {
	if limit <= 0 || limit > audit.MaxLimit {
		limit = audit.DefaultLimit
	}
	rows, err := b.querier(ctx).QueryContext(ctx, b.dialect.Rebind(`SELECT `+snapshotColumns+` FROM row_snapshots
		WHERE table_name = ? AND row_key = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`), table, rowKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query row snapshots: %w", err)
	}
	defer rows.Close()

	var out []audit.RowSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate row snapshots: %w", err)
	}
	return out, nil
}

// DeleteBefore hard-deletes snapshots older than cutoff.
func (b *Backups) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := b.querier(ctx).ExecContext(ctx,
		b.dialect.Rebind(`DELETE FROM row_snapshots WHERE occurred_at < ?`), audit.Timestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete row snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
