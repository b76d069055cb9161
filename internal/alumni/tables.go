// Package alumni declares the governed tables of the alumni system.
package alumni

import "alumni/internal/audit/schema"

const (
	TableBank       = "bank"
	TableAlumni     = "alumni"
	TablePembayaran = "pembayaran"
	TableAdminUsers = "admin_users"
)

func timestamps() []schema.Column {
	return []schema.Column{
		{Name: "created_at", Kind: schema.KindTime},
		{Name: "updated_at", Kind: schema.KindTime},
	}
}

// BankTable describes bank.
func BankTable() schema.Table {
	return schema.Table{
		Name: TableBank,
		Key:  "id",
		Columns: append([]schema.Column{
			{Name: "id", Kind: schema.KindInt},
			{Name: "kode", Kind: schema.KindText},
			{Name: "nama", Kind: schema.KindText},
		}, timestamps()...),
	}
}

// AlumniTable describes alumni.
func AlumniTable() schema.Table {
	return schema.Table{
		Name: TableAlumni,
		Key:  "id",
		Columns: append([]schema.Column{
			{Name: "id", Kind: schema.KindInt},
			{Name: "nim", Kind: schema.KindText},
			{Name: "nama", Kind: schema.KindText},
			{Name: "email", Kind: schema.KindText},
			{Name: "nik", Kind: schema.KindText},
			{Name: "angkatan", Kind: schema.KindInt},
			{Name: "program_studi", Kind: schema.KindText},
			{Name: "ipk", Kind: schema.KindNumeric, Nullable: true},
			{Name: "foto", Kind: schema.KindBinary, Nullable: true},
		}, timestamps()...),
	}
}

// PembayaranTable describes pembayaran.
func PembayaranTable() schema.Table {
	return schema.Table{
		Name: TablePembayaran,
		Key:  "id",
		Columns: append([]schema.Column{
			{Name: "id", Kind: schema.KindInt},
			{Name: "alumni_id", Kind: schema.KindInt},
			{Name: "bank_id", Kind: schema.KindInt},
			{Name: "nomor_rekening", Kind: schema.KindText},
			{Name: "jumlah", Kind: schema.KindInt},
			{Name: "status", Kind: schema.KindText},
			{Name: "dibayar_pada", Kind: schema.KindTime, Nullable: true},
			{Name: "bukti", Kind: schema.KindBinary, Nullable: true},
		}, timestamps()...),
	}
}

// AdminUsersTable describes admin_users.
func AdminUsersTable() schema.Table {
	return schema.Table{
		Name: TableAdminUsers,
		Key:  "id",
		Columns: append([]schema.Column{
			{Name: "id", Kind: schema.KindInt},
			{Name: "email", Kind: schema.KindText},
			{Name: "nama", Kind: schema.KindText},
			{Name: "password_hash", Kind: schema.KindText},
			{Name: "otp_secret", Kind: schema.KindText},
			{Name: "aktif", Kind: schema.KindBool},
		}, timestamps()...),
	}
}

// Tables returns a registry holding every governed table.
func Tables() *schema.Registry {
	return schema.NewRegistry().MustRegister(
		BankTable(),
		AlumniTable(),
		PembayaranTable(),
		AdminUsersTable(),
	)
}
