package retention_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"alumni/internal/audit"
	"alumni/internal/audit/retention"
	"alumni/internal/audit/retention/coldstore"
	"alumni/internal/audit/retention/lock"
	"alumni/internal/audit/store"
	"alumni/internal/platform/database/dbtest"
	"alumni/internal/twofactor"
	tfstore "alumni/internal/twofactor/store"
)

type flakyCold struct {
	inner  retention.ColdStore
	failOn map[string]bool
	calls  map[string]int
}

func (f *flakyCold) Name() string { return f.inner.Name() }

func (f *flakyCold) Archive(ctx context.Context, d time.Time, recs []audit.MutationRecord) (string, error) {
	key := d.Format(store.DayLayout)
	f.calls[key]++
	if f.failOn[key] {
		return "", errors.New("cold store unreachable")
	}
	return f.inner.Archive(ctx, d, recs)
}

type ArchiverSuite struct {
	suite.Suite
	db       *sql.DB
	ledger   *store.Ledger
	backups  *store.Backups
	archive  *store.Archive
	manifest *store.Manifest
	cold     *flakyCold
	locks    *lock.Local
	sessions *twofactor.Service
	archiver *retention.Archiver
	now      time.Time
}

func TestArchiverSuite(t *testing.T) {
	suite.Run(t, new(ArchiverSuite))
}

func (s *ArchiverSuite) SetupTest() {
	db, dialect := dbtest.New(s.T())
	s.db = db
	s.ledger = store.NewLedger(db, dialect)
	s.backups = store.NewBackups(db, dialect)
	s.archive = store.NewArchive(db, dialect)
	s.manifest = store.NewManifest(db, dialect)
	s.cold = &flakyCold{
		inner:  coldstore.NewTable(s.archive),
		failOn: map[string]bool{},
		calls:  map[string]int{},
	}
	s.locks = lock.NewLocal()
	s.now = time.Date(2024, 6, 10, 3, 0, 0, 0, time.UTC)
	s.sessions = twofactor.NewService(tfstore.NewSQL(db, dialect),
		twofactor.WithClock(func() time.Time { return s.now }),
		twofactor.WithLogger(slog.New(slog.DiscardHandler)),
	)
	s.archiver = retention.NewArchiver(s.ledger, s.manifest, s.cold, s.locks, s.backups,
		retention.Config{LedgerDays: 5, SnapshotDays: 7},
		retention.WithLogger(slog.New(slog.DiscardHandler)),
		retention.WithMetrics(retention.NewMetrics(prometheus.NewRegistry())),
		retention.WithSessionPurger(s.sessions),
	)

	for _, at := range []time.Time{
		time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 9, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 10, 1, 0, 0, 0, time.UTC),
	} {
		s.Require().NoError(s.ledger.Append(context.Background(), s.db, audit.MutationRecord{
			ID:            audit.NewID(),
			OccurredAt:    at,
			TableName:     "bank",
			Operation:     audit.OpUpdate,
			RowKey:        "1",
			ChangedFields: []string{"nama"},
			OldImage:      audit.Image{"id": 1, "nama": "Bank Seed A"},
			NewImage:      audit.Image{"id": 1, "nama": "Bank Seed A2"},
			Actor:         audit.Actor{ID: "7", Label: "admin@alumni"},
			RequestID:     "req-" + at.Format(time.RFC3339),
		}))
	}
}

func (s *ArchiverSuite) TestArchivesCompletedDaysAndTrimsPastWindow() {
	ctx := context.Background()

	rep, err := s.archiver.RunOnce(ctx, s.now)
	s.Require().NoError(err)

	s.False(rep.Skipped)
	s.Len(rep.ArchivedDays, 9, "every day from the oldest record up to yesterday")
	s.Equal(4, rep.ArchivedRecords)
	s.Equal(int64(3), rep.DeletedRecords)
	s.Empty(rep.BlockedDays)

	n, err := s.archive.CountDay(ctx, "2024-06-01")
	s.Require().NoError(err)
	s.Equal(int64(2), n)
	n, err = s.archive.CountDay(ctx, "2024-06-09")
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	s.Equal(2, dbtest.Count(s.T(), s.db, "mutation_records"), "June 9 and today remain")
	n, err = s.archive.CountDay(ctx, "2024-06-10")
	s.Require().NoError(err)
	s.Zero(n, "today is not complete")

	days, err := s.manifest.Days(ctx)
	s.Require().NoError(err)
	s.Equal("", days["2024-06-05"].Location, "empty days are marked without a location")
	s.Equal("mutation_records_archive/2024-06-01", days["2024-06-01"].Location)
	s.Equal("table", days["2024-06-01"].Target)
}

func (s *ArchiverSuite) TestRerunIsIdempotent() {
	ctx := context.Background()
	_, err := s.archiver.RunOnce(ctx, s.now)
	s.Require().NoError(err)

	rep, err := s.archiver.RunOnce(ctx, s.now)
	s.Require().NoError(err)
	s.Empty(rep.ArchivedDays)
	s.Zero(rep.DeletedRecords)
	s.Equal(1, s.cold.calls["2024-06-01"])
	s.Equal(2, dbtest.Count(s.T(), s.db, "mutation_records"))
}

func (s *ArchiverSuite) TestFailedCopyBlocksDeletion() {
	ctx := context.Background()
	s.cold.failOn["2024-06-01"] = true

	rep, err := s.archiver.RunOnce(ctx, s.now)
	s.Require().Error(err)
	s.Contains(err.Error(), "2024-06-01")
	s.Equal([]string{"2024-06-01"}, rep.BlockedDays)
	s.NotContains(rep.ArchivedDays, "2024-06-01")
	s.Equal(int64(1), rep.DeletedRecords, "June 2 is still trimmed")
	s.Equal(4, dbtest.Count(s.T(), s.db, "mutation_records"))

	delete(s.cold.failOn, "2024-06-01")
	rep, err = s.archiver.RunOnce(ctx, s.now)
	s.Require().NoError(err)
	s.Equal([]string{"2024-06-01"}, rep.ArchivedDays)
	s.Equal(int64(2), rep.DeletedRecords)
	s.Equal(2, dbtest.Count(s.T(), s.db, "mutation_records"))
}

func (s *ArchiverSuite) TestSkipsWhenLockHeld() {
	ctx := context.Background()
	release, ok, err := s.locks.TryLock(ctx, retention.LockName)
	s.Require().NoError(err)
	s.Require().True(ok)

	rep, err := s.archiver.RunOnce(ctx, s.now)
	s.Require().NoError(err)
	s.True(rep.Skipped)
	s.Empty(s.cold.calls)
	s.Equal(5, dbtest.Count(s.T(), s.db, "mutation_records"))

	s.Require().NoError(release(ctx))
	rep, err = s.archiver.RunOnce(ctx, s.now)
	s.Require().NoError(err)
	s.False(rep.Skipped)
}

func (s *ArchiverSuite) TestPurgesSnapshotsAndSessions() {
	ctx := context.Background()
	old := audit.RowSnapshot{
		ID:         audit.NewID(),
		MutationID: audit.NewID(),
		OccurredAt: s.now.AddDate(0, 0, -30),
		TableName:  "bank",
		Operation:  audit.OpDelete,
		RowKey:     "1",
		OldImage:   audit.Image{"id": 1, "nama": "Bank Seed A"},
		Actor:      audit.Actor{ID: "7", Label: "admin@alumni"},
		RequestID:  "req-old",
	}
	fresh := old
	fresh.ID = audit.NewID()
	fresh.MutationID = audit.NewID()
	fresh.OccurredAt = s.now.Add(-time.Hour)
	s.Require().NoError(s.backups.Append(ctx, s.db, old))
	s.Require().NoError(s.backups.Append(ctx, s.db, fresh))

	_, _, err := s.sessions.Open(ctx, "7", time.Minute, "10.0.0.1", "test")
	s.Require().NoError(err)
	s.now = s.now.Add(2 * time.Hour)

	rep, err := s.archiver.RunOnce(ctx, s.now)
	s.Require().NoError(err)
	s.Equal(int64(1), rep.SnapshotsPurged)
	s.Equal(int64(1), rep.SessionsPurged)

	_, err = s.backups.Get(ctx, s.db, fresh.ID)
	s.NoError(err)
}
