package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"alumni/internal/audit"
	"alumni/pkg/platform/sentinel"
	"alumni/pkg/platform/sqldialect"
)

const recordColumns = `id, occurred_at, table_name, operation, row_key, changed_fields, old_image, new_image,
	actor_id, actor_label, request_id, client_ip, user_agent, http_method, http_path`

// Ledger is the append-only store of MutationRecords.
type Ledger struct {
	base
}

func NewLedger(db *sql.DB, dialect sqldialect.Dialect) *Ledger {
	return &Ledger{base{db: db, dialect: dialect}}
}

// Append inserts rec using q, normally the business transaction.
func (l *Ledger) Append(ctx context.Context, q sqldialect.Queryer, rec audit.MutationRecord) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	query := `INSERT INTO mutation_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.ExecContext(ctx, l.dialect.Rebind(query), args...); err != nil {
		return fmt.Errorf("insert mutation record: %w", err)
	}
	return nil
}

func recordArgs(rec audit.MutationRecord) ([]any, error) {
	fields, err := fieldsArg(rec.ChangedFields)
	if err != nil {
		return nil, err
	}
	oldImg, err := jsonArg(rec.OldImage)
	if err != nil {
		return nil, err
	}
	newImg, err := jsonArg(rec.NewImage)
	if err != nil {
		return nil, err
	}
	return []any{
		rec.ID, audit.Timestamp(rec.OccurredAt), rec.TableName, string(rec.Operation), rec.RowKey,
		fields, oldImg, newImg,
		rec.Actor.ID, rec.Actor.Label, rec.RequestID, rec.ClientIP, rec.UserAgent, rec.HTTPMethod, rec.HTTPPath,
	}, nil
}

func scanRecord(s scanner) (audit.MutationRecord, error) {
	var (
		rec                    audit.MutationRecord
		op                     string
		fields, oldImg, newImg []byte
	)
	err := s.Scan(&rec.ID, &rec.OccurredAt, &rec.TableName, &op, &rec.RowKey, &fields, &oldImg, &newImg,
		&rec.Actor.ID, &rec.Actor.Label, &rec.RequestID, &rec.ClientIP, &rec.UserAgent, &rec.HTTPMethod, &rec.HTTPPath)
	if err != nil {
		return rec, err
	}
	rec.OccurredAt = utc(rec.OccurredAt)
	rec.Operation = audit.Operation(op)
	if rec.ChangedFields, err = decodeFields(fields); err != nil {
		return rec, err
	}
	if rec.OldImage, err = audit.UnmarshalImage(oldImg); err != nil {
		return rec, err
	}
	if rec.NewImage, err = audit.UnmarshalImage(newImg); err != nil {
		return rec, err
	}
	return rec, nil
}

// Get returns one record with its completion attached.
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (audit.MutationRecord, error) {
	q := l.querier(ctx)
	row := q.QueryRowContext(ctx, l.dialect.Rebind(`SELECT `+recordColumns+` FROM mutation_records WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.MutationRecord{}, fmt.Errorf("mutation record %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return audit.MutationRecord{}, fmt.Errorf("get mutation record: %w", err)
	}
	recs := []audit.MutationRecord{rec}
	if err := l.attachCompletions(ctx, recs); err != nil {
		return audit.MutationRecord{}, err
	}
	return recs[0], nil
}

// Query lists records matching f, newest first.
func (l *Ledger) Query(ctx context.Context, f audit.Filter) ([]audit.MutationRecord, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if f.TableName != "" {
		where = append(where, "table_name = ?")
		args = append(args, f.TableName)
	}
	if f.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.RequestID != "" {
		where = append(where, "request_id = ?")
		args = append(args, f.RequestID)
	}
	if f.RowKey != "" {
		where = append(where, "row_key = ?")
		args = append(args, f.RowKey)
	}
	if !f.From.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, audit.Timestamp(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "occurred_at < ?")
		args = append(args, audit.Timestamp(f.To))
	}

	query := `SELECT ` + recordColumns + ` FROM mutation_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	recs, err := l.list(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := l.attachCompletions(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// ListRange returns every record in [from, to) oldest first, for archival.
func (l *Ledger) ListRange(ctx context.Context, from, to time.Time) ([]audit.MutationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM mutation_records
		WHERE occurred_at >= ? AND occurred_at < ? ORDER BY occurred_at, id`
	recs, err := l.list(ctx, query, audit.Timestamp(from), audit.Timestamp(to))
	if err != nil {
		return nil, err
	}
	if err := l.attachCompletions(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (l *Ledger) list(ctx context.Context, query string, args ...any) ([]audit.MutationRecord, error) {
	rows, err := l.querier(ctx).QueryContext(ctx, l.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query mutation records: %w", err)
	}
	defer rows.Close()

	var recs []audit.MutationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mutation record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutation records: %w", err)
	}
	return recs, nil
}

// Oldest returns the occurred_at of the oldest record still in the ledger.
func (l *Ledger) Oldest(ctx context.Context) (time.Time, bool, error) {
	var t time.Time
	err := l.querier(ctx).QueryRowContext(ctx,
		`SELECT occurred_at FROM mutation_records ORDER BY occurred_at LIMIT 1`).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest mutation record: %w", err)
	}
	return utc(t), true, nil
}

// DeleteRange hard-deletes records in [from, to). Only the retention job calls this.
func (l *Ledger) DeleteRange(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := l.querier(ctx).ExecContext(ctx,
		l.dialect.Rebind(`DELETE FROM mutation_records WHERE occurred_at >= ? AND occurred_at < ?`),
		audit.Timestamp(from), audit.Timestamp(to))
	if err != nil {
		return 0, fmt.Errorf("delete mutation records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecordCompletion stores the response status and latency of a request.
// The first completion for a request id wins.
func (l *Ledger) RecordCompletion(ctx context.Context, c audit.Completion) error {
	if c.RequestID == "" {
		return fmt.Errorf("completion without request id")
	}
	_, err := l.querier(ctx).ExecContext(ctx, l.dialect.Rebind(`
		INSERT INTO request_completions (request_id, http_status, latency_ms, completed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING`),
		c.RequestID, c.HTTPStatus, c.LatencyMS, audit.Timestamp(c.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert request completion: %w", err)
	}
	return nil
}

// DeleteCompletionsBefore drops completions older than cutoff.
func (l *Ledger) DeleteCompletionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.querier(ctx).ExecContext(ctx,
		l.dialect.Rebind(`DELETE FROM request_completions WHERE completed_at < ?`), audit.Timestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete request completions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (l *Ledger) attachCompletions(ctx context.Context, recs []audit.MutationRecord) error {
	if len(recs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(recs))
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		if _, ok := seen[r.RequestID]; !ok {
			seen[r.RequestID] = struct{}{}
			ids = append(ids, r.RequestID)
		}
	}
	clause, args := l.dialect.InClause("request_id", ids)
	rows, err := l.querier(ctx).QueryContext(ctx,
		l.dialect.Rebind(`SELECT request_id, http_status, latency_ms FROM request_completions WHERE `+clause), args...)
	if err != nil {
		return fmt.Errorf("query request completions: %w", err)
	}
	defer rows.Close()

	type completion struct {
		status  int
		latency int64
	}
	byID := make(map[string]completion, len(ids))
	for rows.Next() {
		var (
			id string
			c  completion
		)
		if err := rows.Scan(&id, &c.status, &c.latency); err != nil {
			return fmt.Errorf("scan request completion: %w", err)
		}
		byID[id] = c
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate request completions: %w", err)
	}
	for i := range recs {
		if c, ok := byID[recs[i].RequestID]; ok {
			status, latency := c.status, c.latency
			recs[i].HTTPStatus = &status
			recs[i].LatencyMS = &latency
		}
	}
	return nil
}
