package models

import (
	"time"

	dErrors "alumni/pkg/domain-errors"
)

// PembayaranStatus is the lifecycle of a payment.
type PembayaranStatus string

const (
	PembayaranPending PembayaranStatus = "PENDING"
	PembayaranLunas   PembayaranStatus = "LUNAS"
	PembayaranBatal   PembayaranStatus = "BATAL"
)

// Pembayaran is a payment by an alumnus through a bank. Jumlah is in rupiah.
type Pembayaran struct {
	ID            int64            `json:"id"`
	AlumniID      int64            `json:"alumni_id"`
	BankID        int64            `json:"bank_id"`
	NomorRekening string           `json:"nomor_rekening"`
	Jumlah        int64            `json:"jumlah"`
	Status        PembayaranStatus `json:"status"`
	DibayarPada   *time.Time       `json:"dibayar_pada"`
	Bukti         []byte           `json:"bukti"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (p *Pembayaran) Validate() error {
	if p.AlumniID <= 0 || p.BankID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "alumni_id and bank_id are required")
	}
	if p.Jumlah <= 0 {
		return dErrors.New(dErrors.CodeValidation, "jumlah must be positive")
	}
	switch p.Status {
	case PembayaranPending, PembayaranLunas, PembayaranBatal:
	default:
		return dErrors.New(dErrors.CodeValidation, "status is invalid")
	}
	return nil
}

// CanMarkPaid checks the payment is still pending.
func (p *Pembayaran) CanMarkPaid() error {
	if p.Status != PembayaranPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "only pending payments can be marked paid")
	}
	return nil
}

// ApplyPaid moves the payment to LUNAS. Call CanMarkPaid first.
func (p *Pembayaran) ApplyPaid(at time.Time) {
	p.Status = PembayaranLunas
	p.DibayarPada = &at
	p.UpdatedAt = at
}
