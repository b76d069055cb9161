// Package capture records every governed row mutation inside the business
// transaction that performs it.
//
// Capture is fail-closed: when the ledger record or the row snapshot cannot be
// written, the error aborts the enclosing transaction so the business change
// is rolled back with it. Nothing is retried.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"alumni/internal/audit"
	"alumni/internal/audit/carrier"
	"alumni/internal/audit/diff"
	"alumni/internal/audit/schema"
	"alumni/pkg/platform/sqldialect"
)

// LedgerWriter appends ledger records inside a transaction.
type LedgerWriter interface {
	Append(ctx context.Context, q sqldialect.Queryer, rec audit.MutationRecord) error
}

// SnapshotWriter appends row snapshots inside a transaction.
type SnapshotWriter interface {
	Append(ctx context.Context, q sqldialect.Queryer, snap audit.RowSnapshot) error
}

// Mutation describes one row change. Before and After are entities, maps or
// images; Before is nil for INSERT and After is nil for DELETE.
type Mutation struct {
	Table     string
	Operation audit.Operation
	Before    any
	After     any
}

// Interceptor turns mutations into ledger records and snapshots.
type Interceptor struct {
	tables           *schema.Registry
	ledger           LedgerWriter
	backups          SnapshotWriter
	maxBinary        int
	skipEmptyUpdates bool
	logger           *slog.Logger
	metrics          *Metrics
	now              func() time.Time
}

// Option configures the Interceptor.
type Option func(*Interceptor)

// WithLogger sets a logger for capture failures.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) { i.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(i *Interceptor) { i.metrics = m }
}

// WithMaxBinaryBytes caps binary values kept in images.
func WithMaxBinaryBytes(n int) Option {
	return func(i *Interceptor) { i.maxBinary = n }
}

// WithSkipEmptyUpdates drops UPDATE records whose diff is empty.
func WithSkipEmptyUpdates(skip bool) Option {
	return func(i *Interceptor) { i.skipEmptyUpdates = skip }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) { i.now = now }
}

func NewInterceptor(tables *schema.Registry, ledger LedgerWriter, backups SnapshotWriter, opts ...Option) *Interceptor {
	i := &Interceptor{
		tables:  tables,
		ledger:  ledger,
		backups: backups,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Capture writes the ledger record and row snapshot for m through q.
// It returns a nil record when an empty update was skipped.
func (i *Interceptor) Capture(ctx context.Context, q sqldialect.Queryer, c carrier.Carrier, m Mutation) (*audit.MutationRecord, error) {
	rec, snap, err := i.build(c, m)
	if err == nil && rec == nil {
		i.metrics.incSkipped(m.Table)
		return nil, nil
	}
	if err == nil {
		err = i.ledger.Append(ctx, q, *rec)
	}
	if err == nil {
		err = i.backups.Append(ctx, q, snap)
	}
	if err != nil {
		i.metrics.incFailure(m.Table)
		i.logger.ErrorContext(ctx, "CRITICAL: mutation capture failed",
			"table", m.Table,
			"operation", m.Operation,
			"request_id", c.RequestID(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", audit.ErrCaptureFailed, err)
	}
	i.metrics.incCaptured(m.Table, string(m.Operation))
	return rec, nil
}

func (i *Interceptor) build(c carrier.Carrier, m Mutation) (*audit.MutationRecord, audit.RowSnapshot, error) {
	var snap audit.RowSnapshot
	if c.IsZero() {
		return nil, snap, fmt.Errorf("no carrier for %s mutation", m.Table)
	}
	tbl, ok := i.tables.Lookup(m.Table)
	if !ok {
		return nil, snap, fmt.Errorf("table %q is not governed", m.Table)
	}

	before, err := tbl.ImageOf(m.Before, i.maxBinary)
	if err != nil {
		return nil, snap, err
	}
	after, err := tbl.ImageOf(m.After, i.maxBinary)
	if err != nil {
		return nil, snap, err
	}

	keySource := after
	switch m.Operation {
	case audit.OpInsert:
		if after == nil || before != nil {
			return nil, snap, fmt.Errorf("INSERT on %s needs only an after image", m.Table)
		}
	case audit.OpDelete:
		if before == nil || after != nil {
			return nil, snap, fmt.Errorf("DELETE on %s needs only a before image", m.Table)
		}
		keySource = before
	case audit.OpUpdate:
		if before == nil || after == nil {
			return nil, snap, fmt.Errorf("UPDATE on %s needs both images", m.Table)
		}
	default:
		return nil, snap, fmt.Errorf("%w: %q", audit.ErrUnsupportedOperationKind, m.Operation)
	}

	rowKey, err := tbl.RowKeyOf(keySource)
	if err != nil {
		return nil, snap, err
	}
	if m.Operation == audit.OpUpdate {
		beforeKey, err := tbl.RowKeyOf(before)
		if err != nil {
			return nil, snap, err
		}
		if beforeKey != rowKey {
			return nil, snap, fmt.Errorf("UPDATE on %s changes row key %s to %s", m.Table, beforeKey, rowKey)
		}
	}

	changed := diff.Changed(m.Operation, before, after)
	if m.Operation == audit.OpUpdate && len(changed) == 0 && i.skipEmptyUpdates {
		return nil, snap, nil
	}

	at := audit.Timestamp(i.now())
	rec := &audit.MutationRecord{
		ID:            audit.NewID(),
		OccurredAt:    at,
		TableName:     tbl.Name,
		Operation:     m.Operation,
		RowKey:        rowKey,
		ChangedFields: changed,
		OldImage:      before,
		NewImage:      after,
	}
	c.Stamp(rec)

	snap = audit.RowSnapshot{
		ID:         audit.NewID(),
		MutationID: rec.ID,
		OccurredAt: at,
		TableName:  tbl.Name,
		Operation:  m.Operation,
		RowKey:     rowKey,
		OldImage:   before.Clone(),
		NewImage:   after.Clone(),
		Actor:      rec.Actor,
		RequestID:  rec.RequestID,
	}
	return rec, snap, nil
}
