package capture

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"alumni/internal/audit"
	"alumni/internal/audit/carrier"
	"alumni/pkg/platform/sqldialect"
	txcontext "alumni/pkg/platform/tx"
)

var tracer = otel.Tracer("alumni/audit/capture")

// Feed receives the records of a committed unit of work.
type Feed interface {
	Publish(ctx context.Context, records []audit.MutationRecord)
}

// Runner executes audited units of work. Each call to Do runs in its own
// transaction; the mutations it records commit or roll back with the
// business writes.
type Runner struct {
	tx          *txcontext.Runner
	dialect     sqldialect.Dialect
	interceptor *Interceptor
	feed        Feed
	logger      *slog.Logger
	metrics     *Metrics
}

// RunnerOption configures the Runner.
type RunnerOption func(*Runner)

// WithFeed publishes committed records to f.
func WithFeed(f Feed) RunnerOption {
	return func(r *Runner) { r.feed = f }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithRunnerMetrics sets the metrics collector.
func WithRunnerMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func NewRunner(db *sql.DB, dialect sqldialect.Dialect, interceptor *Interceptor, timeout time.Duration, opts ...RunnerOption) *Runner {
	r := &Runner{
		tx:          txcontext.NewRunner(db, timeout),
		dialect:     dialect,
		interceptor: interceptor,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn in a transaction bound to c. fn's context carries the
// transaction; writes go through w.Tx() and are recorded with w.Record.
func (r *Runner) Do(ctx context.Context, c carrier.Carrier, fn func(ctx context.Context, w *Work) error) error {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "audit.UnitOfWork",
		trace.WithAttributes(
			attribute.String("request_id", c.RequestID()),
			attribute.String("actor_id", c.ActorID()),
		),
	)
	defer span.End()

	if c.IsZero() {
		err := fmt.Errorf("%w: unit of work without carrier", audit.ErrCaptureFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing carrier")
		return err
	}

	var w *Work
	err := r.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		w = &Work{tx: tx, dialect: r.dialect, carrier: c, interceptor: r.interceptor}
		return fn(ctx, w)
	})
	r.metrics.observeUnitOfWork(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unit of work failed")
		return err
	}

	span.SetAttributes(attribute.Int("records", len(w.records)))
	if r.feed != nil && len(w.records) > 0 {
		r.feed.Publish(context.WithoutCancel(ctx), w.Records())
	}
	return nil
}

// Work is the handle passed to a unit of work.
type Work struct {
	tx          *sql.Tx
	dialect     sqldialect.Dialect
	carrier     carrier.Carrier
	interceptor *Interceptor
	records     []audit.MutationRecord
}

// Tx returns the business transaction.
func (w *Work) Tx() *sql.Tx { return w.tx }

// Dialect returns the SQL dialect of the transaction.
func (w *Work) Dialect() sqldialect.Dialect { return w.dialect }

// Carrier returns the operation's carrier.
func (w *Work) Carrier() carrier.Carrier { return w.carrier }

// Record captures one mutation. Callers must return its error so the
// transaction rolls back.
func (w *Work) Record(ctx context.Context, op audit.Operation, table string, before, after any) error {
	rec, err := w.interceptor.Capture(ctx, w.tx, w.carrier, Mutation{
		Table:     table,
		Operation: op,
		Before:    before,
		After:     after,
	})
	if err != nil {
		return err
	}
	if rec != nil {
		w.records = append(w.records, *rec)
	}
	return nil
}

// Records returns the mutations captured so far.
func (w *Work) Records() []audit.MutationRecord {
	out := make([]audit.MutationRecord, len(w.records))
	copy(out, w.records)
	return out
}
