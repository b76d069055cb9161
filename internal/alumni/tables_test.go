package alumni_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni/internal/alumni"
	"alumni/internal/alumni/models"
	"alumni/internal/audit/schema"
)

func TestTablesRegistersEveryGovernedTable(t *testing.T) {
	reg := alumni.Tables()
	assert.Equal(t, []string{"admin_users", "alumni", "bank", "pembayaran"}, reg.Tables())
}

func TestImagesCarryDeclaredColumnsOnly(t *testing.T) {
	reg := alumni.Tables()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tbl, ok := reg.Lookup(alumni.TableAlumni)
	require.True(t, ok)
	ipk := 3.5
	img, err := tbl.ImageOf(&models.Alumni{
		ID: 9, NIM: "1301", Nama: "Sari", Angkatan: 2019, IPK: &ipk,
		Foto: make([]byte, 2048), CreatedAt: now, UpdatedAt: now,
	}, 1024)
	require.NoError(t, err)

	assert.ElementsMatch(t, tbl.ColumnNames(), keys(img))
	key, err := tbl.RowKeyOf(img)
	require.NoError(t, err)
	assert.Equal(t, "9", key)
	assert.True(t, schema.IsOmitted(img["foto"]))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
