package models

import (
	"net/mail"
	"strings"
	"time"

	dErrors "alumni/pkg/domain-errors"
)

// Alumni is a graduate record. NIK is the national identity number and is
// personal data; Foto is the portrait image.
type Alumni struct {
	ID           int64     `json:"id"`
	NIM          string    `json:"nim"`
	Nama         string    `json:"nama"`
	Email        string    `json:"email"`
	NIK          string    `json:"nik"`
	Angkatan     int       `json:"angkatan"`
	ProgramStudi string    `json:"program_studi"`
	IPK          *float64  `json:"ipk"`
	Foto         []byte    `json:"foto"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks the fields a graduate record cannot exist without.
func (a *Alumni) Validate() error {
	a.NIM = strings.TrimSpace(a.NIM)
	a.Nama = strings.TrimSpace(a.Nama)
	a.Email = strings.TrimSpace(a.Email)
	if a.NIM == "" {
		return dErrors.New(dErrors.CodeValidation, "nim is required")
	}
	if a.Nama == "" {
		return dErrors.New(dErrors.CodeValidation, "nama is required")
	}
	if a.Email != "" {
		if _, err := mail.ParseAddress(a.Email); err != nil {
			return dErrors.New(dErrors.CodeValidation, "email is invalid")
		}
	}
	if a.Angkatan < 1950 || a.Angkatan > 2100 {
		return dErrors.New(dErrors.CodeValidation, "angkatan is out of range")
	}
	if a.IPK != nil && (*a.IPK < 0 || *a.IPK > 4) {
		return dErrors.New(dErrors.CodeValidation, "ipk must be between 0 and 4")
	}
	return nil
}
