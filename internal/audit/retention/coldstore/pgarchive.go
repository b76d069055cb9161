package coldstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"alumni/internal/audit"
)

const pgArchiveDDL = `
CREATE TABLE IF NOT EXISTS mutation_records_archive (
    id             UUID PRIMARY KEY,
    occurred_at    TIMESTAMPTZ NOT NULL,
    table_name     TEXT NOT NULL,
    operation      TEXT NOT NULL,
    row_key        TEXT NOT NULL,
    changed_fields JSONB NOT NULL DEFAULT '[]',
    old_image      JSONB,
    new_image      JSONB,
    actor_id       TEXT NOT NULL,
    actor_label    TEXT NOT NULL,
    request_id     TEXT NOT NULL,
    client_ip      TEXT NOT NULL DEFAULT '',
    user_agent     TEXT NOT NULL DEFAULT '',
    http_method    TEXT NOT NULL DEFAULT '',
    http_path      TEXT NOT NULL DEFAULT '',
    http_status    INTEGER,
    latency_ms     BIGINT,
    archive_day    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mutation_records_archive_day ON mutation_records_archive (archive_day);
`

const pgArchiveInsert = `
INSERT INTO mutation_records_archive (id, occurred_at, table_name, operation, row_key, changed_fields,
    old_image, new_image, actor_id, actor_label, request_id, client_ip, user_agent, http_method, http_path,
    http_status, latency_ms, archive_day)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (id) DO NOTHING`

// PGArchive copies days into a separate Postgres archive cluster through a
// pgx pool. Completion status and latency are frozen into the archived row.
type PGArchive struct {
	pool *pgxpool.Pool
}

// NewPGArchive connects to url and ensures the archive table exists.
func NewPGArchive(ctx context.Context, url string) (*PGArchive, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect archive database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgArchiveDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap archive database: %w", err)
	}
	return &PGArchive{pool: pool}, nil
}

func (p *PGArchive) Name() string { return "pgarchive" }

func (p *PGArchive) Close() { p.pool.Close() }

func (p *PGArchive) Archive(ctx context.Context, day time.Time, recs []audit.MutationRecord) (string, error) {
	key := dayKey(day)
	batch := &pgx.Batch{}
	for _, rec := range recs {
		args, err := pgArgs(rec, key)
		if err != nil {
			return "", err
		}
		batch.Queue(pgArchiveInsert, args...)
	}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return "", fmt.Errorf("copy %s to archive database: %w", key, err)
	}
	return "pgarchive:mutation_records_archive/" + key, nil
}

func pgArgs(rec audit.MutationRecord, day string) ([]any, error) {
	fields, err := json.Marshal(rec.ChangedFields)
	if err != nil {
		return nil, fmt.Errorf("encode changed fields: %w", err)
	}
	oldImg, err := audit.MarshalImage(rec.OldImage)
	if err != nil {
		return nil, err
	}
	newImg, err := audit.MarshalImage(rec.NewImage)
	if err != nil {
		return nil, err
	}
	return []any{
		rec.ID, audit.Timestamp(rec.OccurredAt), rec.TableName, string(rec.Operation), rec.RowKey, string(fields),
		nullableJSON(oldImg), nullableJSON(newImg), rec.Actor.ID, rec.Actor.Label, rec.RequestID,
		rec.ClientIP, rec.UserAgent, rec.HTTPMethod, rec.HTTPPath, rec.HTTPStatus, rec.LatencyMS, day,
	}, nil
}

func nullableJSON(raw []byte) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}
