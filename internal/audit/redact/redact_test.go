package redact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni/internal/audit"
)

func TestImage_MasksCaseInsensitively(t *testing.T) {
	f := Default()
	in := audit.Image{"email": "a@b.c", "Password_Hash": "$2a$...", "NOMOR_REKENING": "123", "otp_secret": nil}

	out := f.Image(in)

	assert.Equal(t, "a@b.c", out["email"])
	assert.Equal(t, DefaultMarker, out["Password_Hash"])
	assert.Equal(t, DefaultMarker, out["NOMOR_REKENING"])
	assert.Nil(t, out["otp_secret"], "null stays null")
}

// Redaction never touches its input, and applying it twice is the same as once.
func TestImage_IsPure(t *testing.T) {
	f := Default()
	in := audit.Image{"password_hash": "h", "nama": "n"}

	once := f.Image(in)
	twice := f.Image(once)

	assert.Equal(t, "h", in["password_hash"])
	assert.Equal(t, once, twice)
	assert.Nil(t, f.Image(nil))
}

func TestRecord_RedactsBothImagesAndKeepsFields(t *testing.T) {
	f := Default()
	rec := audit.MutationRecord{
		Operation:     audit.OpUpdate,
		ChangedFields: []string{"password_hash"},
		OldImage:      audit.Image{"password_hash": "old"},
		NewImage:      audit.Image{"password_hash": "new"},
	}
	out := f.Record(rec)

	assert.Equal(t, DefaultMarker, out.OldImage["password_hash"])
	assert.Equal(t, DefaultMarker, out.NewImage["password_hash"])
	assert.Equal(t, []string{"password_hash"}, out.ChangedFields)
	assert.Equal(t, "old", rec.OldImage["password_hash"])
}

func TestFromYAML(t *testing.T) {
	doc := `
marker: "***"
rules:
  - field: Ibu_Kandung
    class: personal
  - field: foto
    policy: omit
`
	f, err := FromYAML(strings.NewReader(doc))
	require.NoError(t, err)

	out := f.Image(audit.Image{"ibu_kandung": "Siti", "foto": "blob", "password": "p", "nama": "x"})
	assert.Equal(t, "***", out["ibu_kandung"])
	assert.NotContains(t, out, "foto")
	assert.Equal(t, "***", out["password"], "defaults stay active")
	assert.Equal(t, "x", out["nama"])
}

func TestFromYAML_Rejects(t *testing.T) {
	_, err := FromYAML(strings.NewReader("rules:\n  - field: x\n    policy: shred\n"))
	assert.Error(t, err)

	_, err = FromYAML(strings.NewReader("rules:\n  - class: personal\n"))
	assert.Error(t, err)

	_, err = FromYAML(strings.NewReader("unknown: true\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redaction.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - field: telepon\n"), 0o600))

	f, err := Load(path, []string{"alamat"})
	require.NoError(t, err)

	out := f.Image(audit.Image{"telepon": "0812", "alamat": "Jl. X", "token": "t"})
	assert.Equal(t, DefaultMarker, out["telepon"])
	assert.Equal(t, DefaultMarker, out["alamat"])
	assert.Equal(t, DefaultMarker, out["token"])

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
