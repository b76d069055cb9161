package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni/internal/audit"
	"alumni/internal/audit/redact"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/sentinel"
)

type fakeRecords struct {
	recs   []audit.MutationRecord
	filter audit.Filter
}

func (f *fakeRecords) Query(_ context.Context, filter audit.Filter) ([]audit.MutationRecord, error) {
	f.filter = filter
	return f.recs, nil
}

func (f *fakeRecords) Get(_ context.Context, id uuid.UUID) (audit.MutationRecord, error) {
	for _, r := range f.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return audit.MutationRecord{}, sentinel.ErrNotFound
}

type fakeSnapshots struct{ snaps []audit.RowSnapshot }

func (f fakeSnapshots) ListByRow(context.Context, string, string, int) ([]audit.RowSnapshot, error) {
	return f.snaps, nil
}

type fakeExecutions struct{}

func (fakeExecutions) ListByRow(context.Context, string, string) ([]audit.RestoreExecutionRecord, error) {
	return []audit.RestoreExecutionRecord{{TableName: "bank"}}, nil
}

const firefox = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

func newService(recs []audit.MutationRecord, snaps []audit.RowSnapshot) (*Service, *fakeRecords) {
	records := &fakeRecords{recs: recs}
	return NewService(records, fakeSnapshots{snaps: snaps}, fakeExecutions{}, redact.Default()), records
}

func TestQuery_RedactsAndSummarises(t *testing.T) {
	rec := audit.MutationRecord{
		ID:        uuid.New(),
		TableName: "admin_users",
		NewImage:  audit.Image{"email": "a@b.c", "password_hash": "secret"},
		UserAgent: firefox,
	}
	svc, records := newService([]audit.MutationRecord{rec}, nil)

	views, err := svc.Query(context.Background(), audit.Filter{TableName: "admin_users"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, redact.DefaultMarker, views[0].NewImage["password_hash"])
	assert.Equal(t, "a@b.c", views[0].NewImage["email"])
	assert.Contains(t, views[0].Client.Browser, "Firefox")
	assert.Equal(t, audit.DefaultLimit, records.filter.Limit)
}

func TestQuery_InvalidFilter(t *testing.T) {
	svc, _ := newService(nil, nil)
	now := time.Now()
	_, err := svc.Query(context.Background(), audit.Filter{From: now, To: now.Add(-time.Minute)})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGet(t *testing.T) {
	rec := audit.MutationRecord{ID: uuid.New(), OldImage: audit.Image{"otp_secret": "x"}}
	svc, _ := newService([]audit.MutationRecord{rec}, nil)

	view, err := svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, redact.DefaultMarker, view.OldImage["otp_secret"])
	assert.Equal(t, Client{}, view.Client)

	_, err = svc.Get(context.Background(), uuid.New())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestSnapshotsAndExecutions(t *testing.T) {
	svc, _ := newService(nil, []audit.RowSnapshot{{OldImage: audit.Image{"nomor_rekening": "123"}}})

	snaps, err := svc.Snapshots(context.Background(), "pembayaran", "1", 10)
	require.NoError(t, err)
	assert.Equal(t, redact.DefaultMarker, snaps[0].OldImage["nomor_rekening"])

	_, err = svc.Snapshots(context.Background(), "", "1", 10)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	execs, err := svc.Executions(context.Background(), "bank", "1")
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}
