// Package service orchestrates writes to governed entities inside audited
// units of work.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alumni/internal/alumni/models"
	"alumni/internal/audit"
	"alumni/internal/audit/capture"
	"alumni/internal/audit/carrier"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/sentinel"
	"alumni/pkg/requestcontext"
)

// UnitOfWork runs fn in an audited transaction.
type UnitOfWork interface {
	Do(ctx context.Context, c carrier.Carrier, fn func(ctx context.Context, w *capture.Work) error) error
}

// BankStore persists banks.
type BankStore interface {
	Create(ctx context.Context, w *capture.Work, b *models.Bank) error
	Get(ctx context.Context, id int64) (*models.Bank, error)
	List(ctx context.Context, limit, offset int) ([]*models.Bank, error)
	Execute(ctx context.Context, w *capture.Work, id int64, validate func(*models.Bank) error, mutate func(*models.Bank)) (*models.Bank, error)
	Delete(ctx context.Context, w *capture.Work, id int64) (*models.Bank, error)
}

// BankService manages the bank reference master.
type BankService struct {
	uow   UnitOfWork
	banks BankStore
}

func NewBankService(uow UnitOfWork, banks BankStore) *BankService {
	return &BankService{uow: uow, banks: banks}
}

func (s *BankService) Create(ctx context.Context, c carrier.Carrier, kode, nama string) (*models.Bank, error) {
	b, err := models.NewBank(kode, nama, now(ctx))
	if err != nil {
		return nil, err
	}
	err = s.uow.Do(ctx, c, func(ctx context.Context, w *capture.Work) error {
		return s.banks.Create(ctx, w, b)
	})
	if err != nil {
		return nil, wrapBankErr(err)
	}
	return b, nil
}

func (s *BankService) Get(ctx context.Context, id int64) (*models.Bank, error) {
	if id <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "bank id must be positive")
	}
	b, err := s.banks.Get(ctx, id)
	if err != nil {
		return nil, wrapBankErr(err)
	}
	return b, nil
}

func (s *BankService) List(ctx context.Context, limit, offset int) ([]*models.Bank, error) {
	banks, err := s.banks.List(ctx, limit, offset)
	if err != nil {
		return nil, wrapBankErr(err)
	}
	return banks, nil
}

// Rename validates the new values before opening the transaction so a bad
// request never takes a row lock.
func (s *BankService) Rename(ctx context.Context, c carrier.Carrier, id int64, kode, nama string) (*models.Bank, error) {
	at := now(ctx)
	probe := &models.Bank{}
	if err := probe.Rename(kode, nama, at); err != nil {
		return nil, err
	}

	var updated *models.Bank
	err := s.uow.Do(ctx, c, func(ctx context.Context, w *capture.Work) error {
		b, err := s.banks.Execute(ctx, w, id, nil, func(b *models.Bank) {
			b.Kode, b.Nama, b.UpdatedAt = probe.Kode, probe.Nama, at
		})
		if err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, wrapBankErr(err)
	}
	return updated, nil
}

func (s *BankService) Delete(ctx context.Context, c carrier.Carrier, id int64) error {
	err := s.uow.Do(ctx, c, func(ctx context.Context, w *capture.Work) error {
		_, err := s.banks.Delete(ctx, w, id)
		return err
	})
	if err != nil {
		return wrapBankErr(err)
	}
	return nil
}

func now(ctx context.Context) time.Time {
	return audit.Timestamp(requestcontext.Now(ctx))
}

func wrapBankErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "bank not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "bank already exists")
	default:
		return fmt.Errorf("bank: %w", err)
	}
}
