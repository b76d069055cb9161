// Package retention archives completed ledger days to cold storage and
// enforces the retention windows of the ledger, snapshots and sessions.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"alumni/internal/audit"
	"alumni/internal/audit/store"
)

var tracer = otel.Tracer("alumni/internal/audit/retention")

const (
	day = 24 * time.Hour

	DefaultLedgerDays   = 30
	DefaultSnapshotDays = 365
	// LockName identifies the retention job to leader locks.
	LockName = "alumni-audit-retention"
)

// ColdStore receives completed ledger days. Archive must be idempotent per day.
type ColdStore interface {
	Name() string
	Archive(ctx context.Context, day time.Time, recs []audit.MutationRecord) (location string, err error)
}

// Locker grants the single active instance. ok is false when another
// instance holds the lock.
type Locker interface {
	TryLock(ctx context.Context, name string) (release func(context.Context) error, ok bool, err error)
}

// LedgerSource is the slice of the ledger the job reads and trims.
type LedgerSource interface {
	Oldest(ctx context.Context) (time.Time, bool, error)
	ListRange(ctx context.Context, from, to time.Time) ([]audit.MutationRecord, error)
	DeleteRange(ctx context.Context, from, to time.Time) (int64, error)
	DeleteCompletionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ManifestStore records archived days.
type ManifestStore interface {
	Mark(ctx context.Context, d store.ArchivedDay) error
	Days(ctx context.Context) (map[string]store.ArchivedDay, error)
}

// SnapshotPurger deletes row snapshots past their window.
type SnapshotPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionPurger deletes expired two-factor sessions.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Config holds the retention windows in days.
type Config struct {
	LedgerDays   int
	SnapshotDays int
}

// Report summarises one run.
type Report struct {
	Skipped           bool
	ArchivedDays      []string
	ArchivedRecords   int
	DeletedRecords    int64
	BlockedDays       []string
	CompletionsPurged int64
	SnapshotsPurged   int64
	SessionsPurged    int64
}

// Archiver runs the retention job.
type Archiver struct {
	ledger    LedgerSource
	manifest  ManifestStore
	cold      ColdStore
	locker    Locker
	snapshots SnapshotPurger
	sessions  SessionPurger
	cfg       Config
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures the Archiver.
type Option func(*Archiver)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) { a.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(a *Archiver) { a.metrics = m }
}

// WithSessionPurger also purges expired two-factor sessions on every run.
func WithSessionPurger(p SessionPurger) Option {
	return func(a *Archiver) { a.sessions = p }
}

func NewArchiver(ledger LedgerSource, manifest ManifestStore, cold ColdStore, locker Locker, snapshots SnapshotPurger, cfg Config, opts ...Option) *Archiver {
	if cfg.LedgerDays <= 0 {
		cfg.LedgerDays = DefaultLedgerDays
	}
	if cfg.SnapshotDays <= 0 {
		cfg.SnapshotDays = DefaultSnapshotDays
	}
	a := &Archiver{
		ledger:    ledger,
		manifest:  manifest,
		cold:      cold,
		locker:    locker,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunOnce archives every completed, unarchived day before now and deletes
// archived days older than the ledger window. A day whose copy failed is
// never deleted. Step errors are collected so one failure does not stop the
// remaining steps; the joined error is returned with the partial report.
func (a *Archiver) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	ctx, span := tracer.Start(ctx, "audit.Retention")
	defer span.End()

	release, ok, err := a.locker.TryLock(ctx, LockName)
	if err != nil {
		a.metrics.observeRun("error")
		span.RecordError(err)
		return Report{}, fmt.Errorf("acquire retention lock: %w", err)
	}
	if !ok {
		a.metrics.observeRun("skipped")
		a.logger.InfoContext(ctx, "retention run skipped, another instance holds the lock")
		return Report{Skipped: true}, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			a.logger.WarnContext(ctx, "release retention lock", "error", err)
		}
	}()

	today := now.UTC().Truncate(day)
	var (
		rep  Report
		errs []error
	)

	archived, err := a.archive(ctx, today, &rep)
	if err != nil {
		errs = append(errs, err)
	}
	if archived != nil {
		if err := a.trimLedger(ctx, today, archived, &rep); err != nil {
			errs = append(errs, err)
		}
	}

	if n, err := a.snapshots.DeleteBefore(ctx, today.AddDate(0, 0, -a.cfg.SnapshotDays)); err != nil {
		errs = append(errs, fmt.Errorf("purge snapshots: %w", err))
	} else {
		rep.SnapshotsPurged = n
	}
	if a.sessions != nil {
		if n, err := a.sessions.PurgeExpired(ctx, now); err != nil {
			errs = append(errs, fmt.Errorf("purge sessions: %w", err))
		} else {
			rep.SessionsPurged = n
		}
	}

	span.SetAttributes(
		attribute.Int("archived_days", len(rep.ArchivedDays)),
		attribute.Int64("deleted_records", rep.DeletedRecords),
		attribute.Int("blocked_days", len(rep.BlockedDays)),
	)
	runErr := errors.Join(errs...)
	if runErr != nil {
		a.metrics.observeRun("error")
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "retention run failed")
		a.logger.ErrorContext(ctx, "retention run finished with errors", "error", runErr,
			"archived_days", rep.ArchivedDays, "blocked_days", rep.BlockedDays)
		return rep, runErr
	}
	a.metrics.observeRun("ok")
	a.metrics.observeSuccess(float64(now.Unix()))
	a.logger.InfoContext(ctx, "retention run finished",
		"archived_days", len(rep.ArchivedDays),
		"archived_records", rep.ArchivedRecords,
		"deleted_records", rep.DeletedRecords,
		"snapshots_purged", rep.SnapshotsPurged,
		"sessions_purged", rep.SessionsPurged,
	)
	return rep, nil
}

// archive copies each completed day not yet in the manifest and returns the
// manifest after the run. A nil manifest means it could not be read.
func (a *Archiver) archive(ctx context.Context, today time.Time, rep *Report) (map[string]store.ArchivedDay, error) {
	manifest, err := a.manifest.Days(ctx)
	if err != nil {
		return nil, fmt.Errorf("read archive manifest: %w", err)
	}
	oldest, ok, err := a.ledger.Oldest(ctx)
	if err != nil {
		return manifest, fmt.Errorf("find oldest record: %w", err)
	}
	if !ok {
		return manifest, nil
	}

	var errs []error
	for d := oldest.UTC().Truncate(day); d.Before(today); d = d.Add(day) {
		key := d.Format(store.DayLayout)
		if _, done := manifest[key]; done {
			continue
		}
		entry, err := a.archiveDay(ctx, d)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive day failed", "day", key, "target", a.cold.Name(), "error", err)
			errs = append(errs, fmt.Errorf("archive %s: %w", key, err))
			continue
		}
		manifest[key] = entry
		rep.ArchivedDays = append(rep.ArchivedDays, key)
		rep.ArchivedRecords += int(entry.RecordCount)
		a.metrics.observeArchived(int(entry.RecordCount))
	}
	return manifest, errors.Join(errs...)
}

func (a *Archiver) archiveDay(ctx context.Context, d time.Time) (store.ArchivedDay, error) {
	recs, err := a.ledger.ListRange(ctx, d, d.Add(day))
	if err != nil {
		return store.ArchivedDay{}, err
	}
	location := ""
	if len(recs) > 0 {
		if location, err = a.cold.Archive(ctx, d, recs); err != nil {
			return store.ArchivedDay{}, err
		}
	}
	entry := store.ArchivedDay{
		Day:         d.Format(store.DayLayout),
		Target:      a.cold.Name(),
		Location:    location,
		RecordCount: int64(len(recs)),
		ArchivedAt:  audit.Timestamp(time.Now()),
	}
	if err := a.manifest.Mark(ctx, entry); err != nil {
		return store.ArchivedDay{}, err
	}
	return entry, nil
}

// trimLedger deletes archived days older than the ledger window. Expired
// days missing from the manifest are reported as blocked.
func (a *Archiver) trimLedger(ctx context.Context, today time.Time, manifest map[string]store.ArchivedDay, rep *Report) error {
	cutoff := today.AddDate(0, 0, -a.cfg.LedgerDays)
	oldest, ok, err := a.ledger.Oldest(ctx)
	if err != nil {
		return fmt.Errorf("find oldest record: %w", err)
	}
	if !ok {
		return nil
	}

	var errs []error
	for d := oldest.UTC().Truncate(day); d.Before(cutoff); d = d.Add(day) {
		key := d.Format(store.DayLayout)
		if _, done := manifest[key]; !done {
			rep.BlockedDays = append(rep.BlockedDays, key)
			a.metrics.observeBlocked()
			continue
		}
		n, err := a.ledger.DeleteRange(ctx, d, d.Add(day))
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			continue
		}
		rep.DeletedRecords += n
		a.metrics.observeDeleted(n)
	}

	n, err := a.ledger.DeleteCompletionsBefore(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("purge completions: %w", err))
	} else {
		rep.CompletionsPurged = n
	}
	return errors.Join(errs...)
}
