package models

import "time"

// AdminUser is an operator account. PasswordHash and OTPSecret are
// credentials and are redacted from every audit read.
type AdminUser struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Nama         string    `json:"nama"`
	PasswordHash string    `json:"password_hash"`
	OTPSecret    string    `json:"otp_secret"`
	Aktif        bool      `json:"aktif"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
