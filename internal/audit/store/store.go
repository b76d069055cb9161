// Package store persists ledger records, row snapshots and restore executions
// with database/sql. Writes that must join a business transaction take the
// querier explicitly; reads join a transaction found in the context.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"alumni/internal/audit"
	"alumni/pkg/platform/sqldialect"
	txcontext "alumni/pkg/platform/tx"
)

type base struct {
	db      *sql.DB
	dialect sqldialect.Dialect
}

func (b base) querier(ctx context.Context) sqldialect.Queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return b.db
}

// jsonArg encodes an image for a JSON/TEXT column. Strings are used because
// lib/pq sends []byte as bytea.
func jsonArg(img audit.Image) (any, error) {
	raw, err := audit.MarshalImage(img)
	if err != nil || raw == nil {
		return nil, err
	}
	return string(raw), nil
}

func fieldsArg(fields []string) (string, error) {
	if fields == nil {
		fields = []string{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode changed fields: %w", err)
	}
	return string(raw), nil
}

func decodeFields(raw []byte) ([]string, error) {
	fields := []string{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode changed fields: %w", err)
	}
	return fields, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func utc(t time.Time) time.Time { return t.UTC() }
