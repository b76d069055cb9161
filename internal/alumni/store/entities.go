package store

import (
	"database/sql"

	"alumni/internal/alumni"
	"alumni/internal/alumni/models"
	"alumni/internal/audit"
	"alumni/pkg/platform/sqldialect"
)

type (
	Banks      = Store[models.Bank]
	Alumni     = Store[models.Alumni]
	Pembayaran = Store[models.Pembayaran]
	AdminUsers = Store[models.AdminUser]
)

func NewBanks(db *sql.DB, dialect sqldialect.Dialect) *Banks {
	return &Banks{db: db, dialect: dialect, m: mapper[models.Bank]{
		table:   alumni.TableBank,
		columns: []string{"kode", "nama", "created_at", "updated_at"},
		values: func(b *models.Bank) []any {
			return []any{b.Kode, b.Nama, audit.Timestamp(b.CreatedAt), audit.Timestamp(b.UpdatedAt)}
		},
		scan: func(s scanner) (*models.Bank, error) {
			var b models.Bank
			if err := s.Scan(&b.ID, &b.Kode, &b.Nama, &b.CreatedAt, &b.UpdatedAt); err != nil {
				return nil, err
			}
			b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
			return &b, nil
		},
		id: func(b *models.Bank) *int64 { return &b.ID },
	}}
}

func NewAlumni(db *sql.DB, dialect sqldialect.Dialect) *Alumni {
	return &Alumni{db: db, dialect: dialect, m: mapper[models.Alumni]{
		table: alumni.TableAlumni,
		columns: []string{"nim", "nama", "email", "nik", "angkatan", "program_studi", "ipk", "foto",
			"created_at", "updated_at"},
		values: func(a *models.Alumni) []any {
			return []any{a.NIM, a.Nama, a.Email, a.NIK, a.Angkatan, a.ProgramStudi, a.IPK, blob(a.Foto),
				audit.Timestamp(a.CreatedAt), audit.Timestamp(a.UpdatedAt)}
		},
		scan: func(s scanner) (*models.Alumni, error) {
			var (
				a   models.Alumni
				ipk sql.NullFloat64
			)
			if err := s.Scan(&a.ID, &a.NIM, &a.Nama, &a.Email, &a.NIK, &a.Angkatan, &a.ProgramStudi, &ipk, &a.Foto,
				&a.CreatedAt, &a.UpdatedAt); err != nil {
				return nil, err
			}
			if ipk.Valid {
				a.IPK = &ipk.Float64
			}
			if len(a.Foto) == 0 {
				a.Foto = nil
			}
			a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()
			return &a, nil
		},
		id: func(a *models.Alumni) *int64 { return &a.ID },
	}}
}

func NewPembayaran(db *sql.DB, dialect sqldialect.Dialect) *Pembayaran {
	return &Pembayaran{db: db, dialect: dialect, m: mapper[models.Pembayaran]{
		table: alumni.TablePembayaran,
		columns: []string{"alumni_id", "bank_id", "nomor_rekening", "jumlah", "status", "dibayar_pada", "bukti",
			"created_at", "updated_at"},
		values: func(p *models.Pembayaran) []any {
			var paid any
			if p.DibayarPada != nil {
				paid = audit.Timestamp(*p.DibayarPada)
			}
			return []any{p.AlumniID, p.BankID, p.NomorRekening, p.Jumlah, string(p.Status), paid, blob(p.Bukti),
				audit.Timestamp(p.CreatedAt), audit.Timestamp(p.UpdatedAt)}
		},
		scan: func(s scanner) (*models.Pembayaran, error) {
			var (
				p      models.Pembayaran
				status string
				paid   sql.NullTime
			)
			if err := s.Scan(&p.ID, &p.AlumniID, &p.BankID, &p.NomorRekening, &p.Jumlah, &status, &paid, &p.Bukti,
				&p.CreatedAt, &p.UpdatedAt); err != nil {
				return nil, err
			}
			p.Status = models.PembayaranStatus(status)
			if len(p.Bukti) == 0 {
				p.Bukti = nil
			}
			if paid.Valid {
				t := paid.Time.UTC()
				p.DibayarPada = &t
			}
			p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
			return &p, nil
		},
		id: func(p *models.Pembayaran) *int64 { return &p.ID },
	}}
}

func NewAdminUsers(db *sql.DB, dialect sqldialect.Dialect) *AdminUsers {
	return &AdminUsers{db: db, dialect: dialect, m: mapper[models.AdminUser]{
		table:   alumni.TableAdminUsers,
		columns: []string{"email", "nama", "password_hash", "otp_secret", "aktif", "created_at", "updated_at"},
		values: func(u *models.AdminUser) []any {
			return []any{u.Email, u.Nama, u.PasswordHash, u.OTPSecret, u.Aktif,
				audit.Timestamp(u.CreatedAt), audit.Timestamp(u.UpdatedAt)}
		},
		scan: func(s scanner) (*models.AdminUser, error) {
			var u models.AdminUser
			if err := s.Scan(&u.ID, &u.Email, &u.Nama, &u.PasswordHash, &u.OTPSecret, &u.Aktif,
				&u.CreatedAt, &u.UpdatedAt); err != nil {
				return nil, err
			}
			u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()
			return &u, nil
		},
		id: func(u *models.AdminUser) *int64 { return &u.ID },
	}}
}

// blob stores empty binary values as NULL so images stay stable across reads.
func blob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
