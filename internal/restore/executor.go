package restore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"alumni/internal/audit"
	"alumni/internal/audit/carrier"
	"alumni/internal/authz"
	"alumni/internal/twofactor"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/sentinel"
	"alumni/pkg/platform/sqldialect"
	txcontext "alumni/pkg/platform/tx"
)

var tracer = otel.Tracer("alumni/internal/restore")

// maxNoteLength bounds the operator note stored with an execution record.
const maxNoteLength = 1000

// Authorizer decides whether a principal may restore.
type Authorizer interface {
	CanRestore(p authz.Principal) error
}

// SessionConsumer validates and consumes a two-factor session. It is called
// with the restore transaction in its context.
type SessionConsumer interface {
	RequireAndConsume(ctx context.Context, token, subject string) (twofactor.Session, error)
}

// SnapshotReader loads a row snapshot through the restore transaction.
type SnapshotReader interface {
	Get(ctx context.Context, q sqldialect.Queryer, id uuid.UUID) (audit.RowSnapshot, error)
}

// ExecutionWriter appends the execution record through the restore transaction.
type ExecutionWriter interface {
	Append(ctx context.Context, q sqldialect.Queryer, rec audit.RestoreExecutionRecord) error
}

// Request asks to restore one row from one snapshot.
type Request struct {
	Table        string
	RowKey       string
	SnapshotID   uuid.UUID
	Side         audit.SnapshotSide
	SessionToken string
	Principal    authz.Principal
	Carrier      carrier.Carrier
	Note         string
}

// Executor applies restores. Each restore is one transaction: session
// consume, row lock, write and execution record commit or roll back together.
type Executor struct {
	tx         *txcontext.Runner
	appliers   *Registry
	policy     Authorizer
	sessions   SessionConsumer
	snapshots  SnapshotReader
	executions ExecutionWriter
	now        func() time.Time
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures the Executor.
type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(
	db *sql.DB,
	timeout time.Duration,
	appliers *Registry,
	policy Authorizer,
	sessions SessionConsumer,
	snapshots SnapshotReader,
	executions ExecutionWriter,
	opts ...Option,
) *Executor {
	e := &Executor{
		tx:         txcontext.NewRunner(db, timeout),
		appliers:   appliers,
		policy:     policy,
		sessions:   sessions,
		snapshots:  snapshots,
		executions: executions,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore reverses the mutation captured by req.SnapshotID on one row.
//
// The strategy follows the snapshot's operation: UPDATE overwrites the live
// row with the chosen image, DELETE re-inserts it (upserting an occupied
// key) and INSERT deletes the live row. The restore itself is not captured
// as a mutation; the execution record is its audit trail.
func (e *Executor) Restore(ctx context.Context, req Request) (audit.RestoreExecutionRecord, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "audit.Restore",
		trace.WithAttributes(
			attribute.String("table", req.Table),
			attribute.String("row_key", req.RowKey),
			attribute.String("snapshot_id", req.SnapshotID.String()),
			attribute.String("actor_id", req.Principal.ID),
		),
	)
	defer span.End()

	rec, err := e.restore(ctx, req)
	outcome := outcomeOf(err)
	e.metrics.observe(req.Table, outcome, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		e.logger.WarnContext(ctx, "restore rejected",
			"request_id", req.Carrier.RequestID(),
			"actor_id", req.Principal.ID,
			"table", req.Table,
			"row_key", req.RowKey,
			"snapshot_id", req.SnapshotID,
			"outcome", outcome,
			"error", err,
		)
		return audit.RestoreExecutionRecord{}, err
	}
	e.logger.InfoContext(ctx, "restore applied",
		"request_id", rec.RequestID,
		"actor_id", rec.Actor.ID,
		"table", rec.TableName,
		"row_key", rec.RowKey,
		"snapshot_id", rec.SourceSnapshotID,
		"side", rec.SnapshotSide,
		"execution_id", rec.ID,
	)
	return rec, nil
}

func (e *Executor) restore(ctx context.Context, req Request) (audit.RestoreExecutionRecord, error) {
	if err := e.policy.CanRestore(req.Principal); err != nil {
		return audit.RestoreExecutionRecord{}, err
	}
	if req.Carrier.IsZero() {
		return audit.RestoreExecutionRecord{}, fmt.Errorf("%w: restore without carrier", audit.ErrUnauthorized)
	}
	side, err := audit.ParseSide(string(req.Side))
	if err != nil {
		return audit.RestoreExecutionRecord{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "snapshot side must be OLD or NEW")
	}
	applier, err := e.appliers.Lookup(req.Table)
	if err != nil {
		return audit.RestoreExecutionRecord{}, err
	}
	key, err := applier.Table().ParseKey(req.RowKey)
	if err != nil {
		return audit.RestoreExecutionRecord{}, err
	}
	rowKey := fmt.Sprint(key)

	var rec audit.RestoreExecutionRecord
	err = e.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		session, err := e.sessions.RequireAndConsume(ctx, req.SessionToken, req.Principal.ID)
		if err != nil {
			return err
		}

		snap, err := e.snapshots.Get(ctx, tx, req.SnapshotID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("%w: snapshot %s", audit.ErrUnknownTarget, req.SnapshotID)
		}
		if err != nil {
			return err
		}
		if snap.TableName != req.Table || snap.RowKey != rowKey {
			return fmt.Errorf("%w: snapshot %s belongs to %s/%s", audit.ErrUnknownTarget, snap.ID, snap.TableName, snap.RowKey)
		}

		exists, err := applier.Lock(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := apply(ctx, tx, applier, snap, side, key, exists); err != nil {
			return err
		}

		rec = audit.RestoreExecutionRecord{
			ID:               audit.NewID(),
			ExecutedAt:       audit.Timestamp(e.now()),
			Actor:            req.Carrier.Actor(),
			TableName:        req.Table,
			RowKey:           rowKey,
			SourceSnapshotID: snap.ID,
			SnapshotSide:     side,
			SessionID:        session.ID,
			RequestID:        req.Carrier.RequestID(),
			Note:             truncate(strings.TrimSpace(req.Note), maxNoteLength),
		}
		return e.executions.Append(ctx, tx, rec)
	})
	if err != nil {
		return audit.RestoreExecutionRecord{}, err
	}
	return rec, nil
}

func apply(ctx context.Context, tx *sql.Tx, a Applier, snap audit.RowSnapshot, side audit.SnapshotSide, key any, exists bool) error {
	switch snap.Operation {
	case audit.OpUpdate:
		img, err := snap.ImageFor(side)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s row %s no longer exists", audit.ErrUnknownTarget, snap.TableName, snap.RowKey)
		}
		return a.RevertUpdate(ctx, tx, key, img)
	case audit.OpDelete:
		img, err := snap.ImageFor(side)
		if err != nil {
			return err
		}
		return a.Reinsert(ctx, tx, key, img)
	case audit.OpInsert:
		if !exists {
			return fmt.Errorf("%w: %s row %s already removed", audit.ErrUnknownTarget, snap.TableName, snap.RowKey)
		}
		return a.Remove(ctx, tx, key)
	default:
		return fmt.Errorf("%w: %q", audit.ErrUnsupportedOperationKind, snap.Operation)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, audit.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, audit.ErrSessionInvalid):
		return "session_invalid"
	case errors.Is(err, audit.ErrUnknownTarget):
		return "unknown_target"
	case errors.Is(err, audit.ErrSnapshotEmpty):
		return "snapshot_empty"
	case errors.Is(err, audit.ErrUnsupportedOperationKind):
		return "unsupported_operation"
	case errors.Is(err, audit.ErrInvalidRowKey):
		return "invalid_row_key"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
