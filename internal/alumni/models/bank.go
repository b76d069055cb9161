// Package models holds the governed entities. JSON tags equal column names:
// the audit images of these rows are their JSON encodings.
package models

import (
	"regexp"
	"strings"
	"time"

	dErrors "alumni/pkg/domain-errors"
)

var bankKodePattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// Bank is a reference master row.
type Bank struct {
	ID        int64     `json:"id"`
	Kode      string    `json:"kode"`
	Nama      string    `json:"nama"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBank validates and builds a bank stamped with now.
func NewBank(kode, nama string, now time.Time) (*Bank, error) {
	b := &Bank{CreatedAt: now, UpdatedAt: now}
	if err := b.Rename(kode, nama, now); err != nil {
		return nil, err
	}
	return b, nil
}

// Rename replaces kode and nama after validating them.
func (b *Bank) Rename(kode, nama string, now time.Time) error {
	kode = strings.ToUpper(strings.TrimSpace(kode))
	nama = strings.TrimSpace(nama)
	if !bankKodePattern.MatchString(kode) {
		return dErrors.New(dErrors.CodeValidation, "kode must be 2-10 letters or digits")
	}
	if nama == "" || len(nama) > 128 {
		return dErrors.New(dErrors.CodeValidation, "nama is required and at most 128 characters")
	}
	b.Kode = kode
	b.Nama = nama
	b.UpdatedAt = now
	return nil
}
