package capture_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"alumni/internal/audit"
	"alumni/internal/audit/capture"
	"alumni/internal/audit/carrier"
	"alumni/internal/audit/schema"
	"alumni/internal/audit/store"
	"alumni/internal/platform/database/dbtest"
	"alumni/pkg/platform/sqldialect"
)

type bankRow struct {
	ID        int64     `json:"id"`
	Kode      string    `json:"kode"`
	Nama      string    `json:"nama"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func bankTable() schema.Table {
	return schema.Table{
		Name: "bank",
		Key:  "id",
		Columns: []schema.Column{
			{Name: "id", Kind: schema.KindInt},
			{Name: "kode", Kind: schema.KindText},
			{Name: "nama", Kind: schema.KindText},
			{Name: "created_at", Kind: schema.KindTime},
			{Name: "updated_at", Kind: schema.KindTime},
		},
	}
}

type recordingFeed struct {
	mu      sync.Mutex
	batches [][]audit.MutationRecord
}

func (f *recordingFeed) Publish(_ context.Context, recs []audit.MutationRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, recs)
}

type failingLedger struct{}

func (failingLedger) Append(context.Context, sqldialect.Queryer, audit.MutationRecord) error {
	return errors.New("disk full")
}

type CaptureSuite struct {
	suite.Suite
	db      *sql.DB
	dialect sqldialect.Dialect
	tables  *schema.Registry
	ledger  *store.Ledger
	backups *store.Backups
	feed    *recordingFeed
	metrics *capture.Metrics
	carrier carrier.Carrier
	now     time.Time
}

func TestCaptureSuite(t *testing.T) {
	suite.Run(t, new(CaptureSuite))
}

func (s *CaptureSuite) SetupTest() {
	s.db, s.dialect = dbtest.New(s.T())
	s.tables = schema.NewRegistry().MustRegister(bankTable())
	s.ledger = store.NewLedger(s.db, s.dialect)
	s.backups = store.NewBackups(s.db, s.dialect)
	s.feed = &recordingFeed{}
	s.metrics = capture.NewMetrics(prometheus.NewRegistry())
	s.now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.carrier = carrier.MustNew(carrier.Params{ActorID: "7", ActorLabel: "ops@alumni", RequestID: "req-1", HTTPMethod: "POST", HTTPPath: "/bank"})
}

func (s *CaptureSuite) runner(ledger capture.LedgerWriter, opts ...capture.Option) *capture.Runner {
	opts = append([]capture.Option{capture.WithClock(func() time.Time { return s.now }), capture.WithMetrics(s.metrics)}, opts...)
	i := capture.NewInterceptor(s.tables, ledger, s.backups, opts...)
	return capture.NewRunner(s.db, s.dialect, i, time.Second, capture.WithFeed(s.feed), capture.WithRunnerMetrics(s.metrics))
}

func insertBank(ctx context.Context, w *capture.Work, row *bankRow) error {
	res, err := w.Tx().ExecContext(ctx, w.Dialect().Rebind(`INSERT INTO bank (kode, nama, created_at, updated_at) VALUES (?, ?, ?, ?)`),
		row.Kode, row.Nama, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return err
	}
	if row.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return w.Record(ctx, audit.OpInsert, "bank", nil, row)
}

func (s *CaptureSuite) TestInsertCommitsRowRecordAndSnapshot() {
	ctx := context.Background()
	row := &bankRow{Kode: "BSA", Nama: "Bank Seed A", CreatedAt: s.now, UpdatedAt: s.now}

	err := s.runner(s.ledger).Do(ctx, s.carrier, func(ctx context.Context, w *capture.Work) error {
		return insertBank(ctx, w, row)
	})
	s.Require().NoError(err)

	s.Equal(1, dbtest.Count(s.T(), s.db, "bank"))
	recs, err := s.ledger.Query(ctx, audit.Filter{TableName: "bank"})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	rec := recs[0]
	s.Equal(audit.OpInsert, rec.Operation)
	s.Equal("1", rec.RowKey)
	s.Nil(rec.OldImage)
	s.Equal("Bank Seed A", rec.NewImage["nama"])
	s.Equal([]string{"created_at", "id", "kode", "nama", "updated_at"}, rec.ChangedFields)
	s.Equal("req-1", rec.RequestID)
	s.Equal("POST", rec.HTTPMethod)
	s.True(s.now.Equal(rec.OccurredAt))

	snaps, err := s.backups.ListByRow(ctx, "bank", "1", 0)
	s.Require().NoError(err)
	s.Require().Len(snaps, 1)
	s.Equal(rec.ID, snaps[0].MutationID)

	s.Require().Len(s.feed.batches, 1)
	s.Equal(rec.ID, s.feed.batches[0][0].ID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Captured.WithLabelValues("bank", "INSERT")))
}

// A failure after capture rolls back the business row and the audit rows together.
func (s *CaptureSuite) TestBusinessFailureRollsBackCapture() {
	ctx := context.Background()
	boom := errors.New("validation failed later")

	err := s.runner(s.ledger).Do(ctx, s.carrier, func(ctx context.Context, w *capture.Work) error {
		if err := insertBank(ctx, w, &bankRow{Kode: "X", Nama: "X", CreatedAt: s.now, UpdatedAt: s.now}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	s.Zero(dbtest.Count(s.T(), s.db, "bank"))
	s.Zero(dbtest.Count(s.T(), s.db, "mutation_records"))
	s.Zero(dbtest.Count(s.T(), s.db, "row_snapshots"))
	s.Empty(s.feed.batches, "nothing published for a rolled back unit")
}

// A ledger write failure fails the business transaction.
func (s *CaptureSuite) TestCaptureFailureRollsBackBusinessWrite() {
	ctx := context.Background()

	err := s.runner(failingLedger{}).Do(ctx, s.carrier, func(ctx context.Context, w *capture.Work) error {
		return insertBank(ctx, w, &bankRow{Kode: "X", Nama: "X", CreatedAt: s.now, UpdatedAt: s.now})
	})
	s.ErrorIs(err, audit.ErrCaptureFailed)

	s.Zero(dbtest.Count(s.T(), s.db, "bank"))
	s.Zero(dbtest.Count(s.T(), s.db, "row_snapshots"))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Failures.WithLabelValues("bank")))
}

func (s *CaptureSuite) TestUpdateRecordsChangedFieldsOnly() {
	ctx := context.Background()
	row := &bankRow{Kode: "BSA", Nama: "Bank Seed A", CreatedAt: s.now, UpdatedAt: s.now}
	r := s.runner(s.ledger)
	s.Require().NoError(r.Do(ctx, s.carrier, func(ctx context.Context, w *capture.Work) error { return insertBank(ctx, w, row) }))

	before := *row
	after := *row
	after.Nama = "Bank Seed A2"
	s.Require().NoError(r.Do(ctx, s.carrier, func(ctx context.Context, w *capture.Work) error {
		return w.Record(ctx, audit.OpUpdate, "bank", &before, &after)
	}))

	recs, err := s.ledger.Query(ctx, audit.Filter{TableName: "bank"})
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal(audit.OpUpdate, recs[0].Operation)
	s.Equal([]string{"nama"}, recs[0].ChangedFields)
	s.Equal("Bank Seed A", recs[0].OldImage["nama"])
	s.Equal("Bank Seed A2", recs[0].NewImage["nama"])
}

func (s *CaptureSuite) TestEmptyUpdate() {
	ctx := context.Background()
	row := &bankRow{ID: 1, Kode: "K", Nama: "N", CreatedAt: s.now, UpdatedAt: s.now}

	s.Require().NoError(s.runner(s.ledger).Do(ctx, s.carrier, func(ctx context.Context, w *capture.Work) error {
		return w.Record(ctx, audit.OpUpdate, "bank", row, row)
	}))
	s.Equal(1, dbtest.Count(s.T(), s.db, "mutation_records"), "recorded by default")

	s.Require().NoError(s.runner(s.ledger, capture.WithSkipEmptyUpdates(true)).Do(ctx, s.carrier, func(ctx context.Context, w *capture.Work) error {
		return w.Record(ctx, audit.OpUpdate, "bank", row, row)
	}))
	s.Equal(1, dbtest.Count(s.T(), s.db, "mutation_records"), "skipped when configured")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Skipped.WithLabelValues("bank")))
}

func (s *CaptureSuite) TestRejectsInvalidMutations() {
	ctx := context.Background()
	row := &bankRow{ID: 1, Kode: "K", Nama: "N"}
	moved := *row
	moved.ID = 2

	cases := map[string]func(ctx context.Context, w *capture.Work) error{
		"ungoverned table": func(ctx context.Context, w *capture.Work) error {
			return w.Record(ctx, audit.OpInsert, "sessions", nil, row)
		},
		"insert with before": func(ctx context.Context, w *capture.Work) error {
			return w.Record(ctx, audit.OpInsert, "bank", row, row)
		},
		"delete without before": func(ctx context.Context, w *capture.Work) error {
			return w.Record(ctx, audit.OpDelete, "bank", nil, nil)
		},
		"update changing key": func(ctx context.Context, w *capture.Work) error {
			return w.Record(ctx, audit.OpUpdate, "bank", row, &moved)
		},
		"unknown operation": func(ctx context.Context, w *capture.Work) error {
			return w.Record(ctx, audit.Operation("UPSERT"), "bank", nil, row)
		},
	}
	for name, fn := range cases {
		s.Run(name, func() {
			err := s.runner(s.ledger).Do(ctx, s.carrier, fn)
			s.ErrorIs(err, audit.ErrCaptureFailed)
		})
	}
	s.Zero(dbtest.Count(s.T(), s.db, "mutation_records"))
}

func (s *CaptureSuite) TestDoRequiresCarrier() {
	err := s.runner(s.ledger).Do(context.Background(), carrier.Carrier{}, func(context.Context, *capture.Work) error {
		s.Fail("unit of work must not run")
		return nil
	})
	s.ErrorIs(err, audit.ErrCaptureFailed)
}
