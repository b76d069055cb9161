package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"alumni/internal/audit"
	"alumni/internal/audit/redact"
)

type fakeProducer struct {
	mu      sync.Mutex
	err     error
	records []*kgo.Record
}

func (f *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.mu.Lock()
	f.records = append(f.records, r)
	err := f.err
	f.mu.Unlock()
	promise(r, err)
}

func sampleRecord() audit.MutationRecord {
	return audit.MutationRecord{
		ID:            uuid.New(),
		OccurredAt:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		TableName:     "admin_users",
		Operation:     audit.OpUpdate,
		RowKey:        "3",
		ChangedFields: []string{"password_hash"},
		OldImage:      audit.Image{"password_hash": "old"},
		NewImage:      audit.Image{"password_hash": "new"},
		Actor:         audit.Actor{ID: "1", Label: "root"},
		RequestID:     "req-feed",
	}
}

func TestPublish_RedactsAndKeysByRow(t *testing.T) {
	producer := &fakeProducer{}
	metrics := NewMetrics(prometheus.NewRegistry())
	p := New(producer, "alumni.audit", redact.Default(), WithMetrics(metrics), WithLogger(slog.New(slog.DiscardHandler)))

	rec := sampleRecord()
	p.Publish(context.Background(), []audit.MutationRecord{rec})

	require.Len(t, producer.records, 1)
	r := producer.records[0]
	assert.Equal(t, "alumni.audit", r.Topic)
	assert.Equal(t, "admin_users:3", string(r.Key))

	var msg Message
	require.NoError(t, json.Unmarshal(r.Value, &msg))
	assert.Equal(t, 1, msg.Version)
	assert.Equal(t, redact.DefaultMarker, msg.Record.NewImage["password_hash"])
	assert.Equal(t, "new", rec.NewImage["password_hash"], "caller's record untouched")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Published))
}

func TestPublish_OpensCircuitAndDrops(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	metrics := NewMetrics(prometheus.NewRegistry())
	p := New(producer, "t", redact.Default(),
		WithMetrics(metrics),
		WithCircuitBreaker(NewCircuitBreaker(2, time.Hour)),
		WithLogger(slog.New(slog.DiscardHandler)),
	)

	recs := []audit.MutationRecord{sampleRecord(), sampleRecord(), sampleRecord(), sampleRecord()}
	p.Publish(context.Background(), recs)

	assert.Len(t, producer.records, 2, "circuit opens after two failures")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DeliveryFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CircuitBreakerDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CircuitBreakerState))
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow(), "half-open lets one attempt through")

	assert.True(t, cb.RecordFailure(), "a failed probe reopens immediately")
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.RecordFailure(), "success reset the count")
}
