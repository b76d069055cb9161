package service_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"alumni/internal/alumni"
	"alumni/internal/alumni/service"
	"alumni/internal/alumni/store"
	"alumni/internal/audit"
	"alumni/internal/audit/capture"
	"alumni/internal/audit/carrier"
	auditstore "alumni/internal/audit/store"
	"alumni/internal/platform/database/dbtest"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/requestcontext"
)

type BankServiceSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *auditstore.Ledger
	service *service.BankService
	carrier carrier.Carrier
}

func TestBankServiceSuite(t *testing.T) {
	suite.Run(t, new(BankServiceSuite))
}

func (s *BankServiceSuite) SetupTest() {
	db, dialect := dbtest.New(s.T())
	s.ledger = auditstore.NewLedger(db, dialect)
	interceptor := capture.NewInterceptor(alumni.Tables(), s.ledger, auditstore.NewBackups(db, dialect),
		capture.WithLogger(slog.New(slog.DiscardHandler)))
	s.service = service.NewBankService(capture.NewRunner(db, dialect, interceptor, time.Second), store.NewBanks(db, dialect))
	s.carrier = carrier.MustNew(carrier.Params{ActorID: "admin-1", RequestID: "req-bank"})
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 4, 5, 6, 7, 8, 123456789, time.UTC))
}

func (s *BankServiceSuite) TestCreateNormalisesAndStamps() {
	b, err := s.service.Create(s.ctx, s.carrier, " bsa ", " Bank Seed A ")
	s.Require().NoError(err)
	s.Equal("BSA", b.Kode)
	s.Equal("Bank Seed A", b.Nama)
	s.Equal(audit.Timestamp(requestcontext.Now(s.ctx)), b.CreatedAt)

	got, err := s.service.Get(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(*b, *got)
}

func (s *BankServiceSuite) TestCreateValidation() {
	_, err := s.service.Create(s.ctx, s.carrier, "x", "Bank")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.service.Create(s.ctx, s.carrier, "BSA", "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *BankServiceSuite) TestRenameAndDelete() {
	b, err := s.service.Create(s.ctx, s.carrier, "BSA", "Bank Seed A")
	s.Require().NoError(err)

	renamed, err := s.service.Rename(s.ctx, s.carrier, b.ID, "BSA", "Bank Seed A2")
	s.Require().NoError(err)
	s.Equal("Bank Seed A2", renamed.Nama)

	s.Require().NoError(s.service.Delete(s.ctx, s.carrier, b.ID))

	_, err = s.service.Get(s.ctx, b.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	recs, err := s.ledger.Query(s.ctx, audit.Filter{TableName: alumni.TableBank, RequestID: "req-bank"})
	s.Require().NoError(err)
	s.Len(recs, 3)
}

func (s *BankServiceSuite) TestMissingBank() {
	_, err := s.service.Rename(s.ctx, s.carrier, 99, "BSA", "Nope")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.True(dErrors.HasCode(s.service.Delete(s.ctx, s.carrier, 99), dErrors.CodeNotFound))
	_, err = s.service.Get(s.ctx, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *BankServiceSuite) TestMissingCarrierFailsClosed() {
	_, err := s.service.Create(s.ctx, carrier.Carrier{}, "BSA", "Bank Seed A")
	s.ErrorIs(err, audit.ErrCaptureFailed)

	banks, err := s.service.List(s.ctx, 10, 0)
	s.Require().NoError(err)
	s.Empty(banks)
}
