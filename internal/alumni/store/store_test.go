package store_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"alumni/internal/alumni"
	"alumni/internal/alumni/models"
	"alumni/internal/alumni/store"
	"alumni/internal/audit"
	"alumni/internal/audit/capture"
	"alumni/internal/audit/carrier"
	auditstore "alumni/internal/audit/store"
	"alumni/internal/platform/database/dbtest"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/sentinel"
)

type EntityStoreSuite struct {
	suite.Suite
	db      *sql.DB
	ledger  *auditstore.Ledger
	runner  *capture.Runner
	carrier carrier.Carrier
	now     time.Time

	banks      *store.Banks
	alumni     *store.Alumni
	pembayaran *store.Pembayaran
	admins     *store.AdminUsers
}

func TestEntityStoreSuite(t *testing.T) {
	suite.Run(t, new(EntityStoreSuite))
}

func (s *EntityStoreSuite) SetupTest() {
	db, dialect := dbtest.New(s.T())
	s.db = db
	s.now = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	s.ledger = auditstore.NewLedger(db, dialect)
	interceptor := capture.NewInterceptor(alumni.Tables(), s.ledger, auditstore.NewBackups(db, dialect),
		capture.WithLogger(slog.New(slog.DiscardHandler)),
		capture.WithClock(func() time.Time { return s.now }),
	)
	s.runner = capture.NewRunner(db, dialect, interceptor, time.Second)
	s.carrier = carrier.MustNew(carrier.Params{ActorID: "admin-1", RequestID: "req-store"})

	s.banks = store.NewBanks(db, dialect)
	s.alumni = store.NewAlumni(db, dialect)
	s.pembayaran = store.NewPembayaran(db, dialect)
	s.admins = store.NewAdminUsers(db, dialect)
}

func (s *EntityStoreSuite) do(fn func(ctx context.Context, w *capture.Work) error) error {
	return s.runner.Do(context.Background(), s.carrier, fn)
}

func (s *EntityStoreSuite) records(table string) []audit.MutationRecord {
	recs, err := s.ledger.Query(context.Background(), audit.Filter{TableName: table})
	s.Require().NoError(err)
	return recs
}

func (s *EntityStoreSuite) TestBankLifecycleIsCaptured() {
	ctx := context.Background()
	b, err := models.NewBank("bsa", "Bank Seed A", s.now)
	s.Require().NoError(err)

	s.Require().NoError(s.do(func(ctx context.Context, w *capture.Work) error {
		return s.banks.Create(ctx, w, b)
	}))
	s.Positive(b.ID)

	got, err := s.banks.Get(ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(*b, *got)

	s.Require().NoError(s.do(func(ctx context.Context, w *capture.Work) error {
		_, err := s.banks.Execute(ctx, w, b.ID, nil, func(b *models.Bank) { b.Nama = "Bank Seed A2" })
		return err
	}))
	s.Require().NoError(s.do(func(ctx context.Context, w *capture.Work) error {
		_, err := s.banks.Delete(ctx, w, b.ID)
		return err
	}))

	_, err = s.banks.Get(ctx, b.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	recs := s.records(alumni.TableBank)
	s.Require().Len(recs, 3)
	s.Equal(audit.OpDelete, recs[0].Operation)
	s.Equal("Bank Seed A2", recs[0].OldImage["nama"])
	s.Equal(audit.OpUpdate, recs[1].Operation)
	s.Equal([]string{"nama"}, recs[1].ChangedFields)
	s.Equal(audit.OpInsert, recs[2].Operation)
}

func (s *EntityStoreSuite) TestValidateRejectsBeforeWrite() {
	b, _ := models.NewBank("BSB", "Bank Seed B", s.now)
	s.Require().NoError(s.do(func(ctx context.Context, w *capture.Work) error {
		return s.banks.Create(ctx, w, b)
	}))

	err := s.do(func(ctx context.Context, w *capture.Work) error {
		_, err := s.banks.Execute(ctx, w, b.ID,
			func(*models.Bank) error { return dErrors.New(dErrors.CodeConflict, "locked") },
			func(b *models.Bank) { b.Nama = "never" },
		)
		return err
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Len(s.records(alumni.TableBank), 1)
}

func (s *EntityStoreSuite) TestMissingRow() {
	err := s.do(func(ctx context.Context, w *capture.Work) error {
		_, err := s.banks.Delete(ctx, w, 404)
		return err
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *EntityStoreSuite) TestAlumniNullableAndBinaryColumns() {
	ctx := context.Background()
	ipk := 3.75
	a := &models.Alumni{NIM: "13519001", Nama: "Sari", NIK: "3201010101010001", Angkatan: 2019,
		IPK: &ipk, Foto: []byte{0x89, 0x50, 0x4e, 0x47}, CreatedAt: s.now, UpdatedAt: s.now}
	s.Require().NoError(a.Validate())
	s.Require().NoError(s.do(func(ctx context.Context, w *capture.Work) error {
		return s.alumni.Create(ctx, w, a)
	}))

	got, err := s.alumni.Get(ctx, a.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.IPK)
	s.InDelta(3.75, *got.IPK, 1e-9)
	s.Equal(a.Foto, got.Foto)

	s.Require().NoError(s.do(func(ctx context.Context, w *capture.Work) error {
		_, err := s.alumni.Execute(ctx, w, a.ID, nil, func(a *models.Alumni) {
			a.IPK = nil
			a.Foto = nil
		})
		return err
	}))
	got, err = s.alumni.Get(ctx, a.ID)
	s.Require().NoError(err)
	s.Nil(got.IPK)
	s.Nil(got.Foto)

	recs := s.records(alumni.TableAlumni)
	s.Require().Len(recs, 2)
	s.Equal([]string{"foto", "ipk"}, recs[0].ChangedFields)
}

func (s *EntityStoreSuite) TestPembayaranMarkPaid() {
	ctx := context.Background()
	p := &models.Pembayaran{AlumniID: 1, BankID: 1, NomorRekening: "1234567890", Jumlah: 250000,
		Status: models.PembayaranPending, CreatedAt: s.now, UpdatedAt: s.now}
	s.Require().NoError(p.Validate())
	s.Require().NoError(s.do(func(ctx context.Context, w *capture.Work) error {
		return s.pembayaran.Create(ctx, w, p)
	}))

	paidAt := s.now.Add(time.Hour)
	markPaid := func(ctx context.Context, w *capture.Work) error {
		_, err := s.pembayaran.Execute(ctx, w, p.ID,
			(*models.Pembayaran).CanMarkPaid,
			func(next *models.Pembayaran) { next.ApplyPaid(paidAt) },
		)
		return err
	}
	s.Require().NoError(s.do(markPaid))

	got, err := s.pembayaran.Get(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.PembayaranLunas, got.Status)
	s.Require().NotNil(got.DibayarPada)
	s.True(paidAt.Equal(*got.DibayarPada))

	s.True(dErrors.HasCode(s.do(markPaid), dErrors.CodeInvariantViolation))

	recs := s.records(alumni.TablePembayaran)
	s.Require().Len(recs, 2)
	s.Equal("PENDING", recs[0].OldImage["status"])
	s.Equal("LUNAS", recs[0].NewImage["status"])
}

func (s *EntityStoreSuite) TestAdminUserUniqueEmail() {
	mk := func() *models.AdminUser {
		return &models.AdminUser{Email: "ops@alumni.test", Nama: "Ops", PasswordHash: "$2a$10$hash",
			Aktif: true, CreatedAt: s.now, UpdatedAt: s.now}
	}
	s.Require().NoError(s.do(func(ctx context.Context, w *capture.Work) error {
		return s.admins.Create(ctx, w, mk())
	}))
	err := s.do(func(ctx context.Context, w *capture.Work) error {
		return s.admins.Create(ctx, w, mk())
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	recs := s.records(alumni.TableAdminUsers)
	s.Require().Len(recs, 1)
	s.Equal("$2a$10$hash", recs[0].NewImage["password_hash"], "ledger keeps raw values; redaction is applied on read")
	s.Equal(true, recs[0].NewImage["aktif"])
}

func (s *EntityStoreSuite) TestList() {
	for _, kode := range []string{"AA", "BB", "CC"} {
		b, _ := models.NewBank(kode, "Bank "+kode, s.now)
		s.Require().NoError(s.do(func(ctx context.Context, w *capture.Work) error {
			return s.banks.Create(ctx, w, b)
		}))
	}
	banks, err := s.banks.List(context.Background(), 2, 1)
	s.Require().NoError(err)
	s.Require().Len(banks, 2)
	s.Equal("BB", banks[0].Kode)
	s.Equal("CC", banks[1].Kode)
}
