//go:build integration

package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"alumni/internal/audit"
	"alumni/internal/audit/redact"
	"alumni/pkg/testutil/containers"
)

func TestPublishToBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rp := containers.GetManager().GetRedpanda(t)
	topic := "alumni.audit.it"

	producer, err := NewClient(rp.Brokers, topic)
	require.NoError(t, err)
	t.Cleanup(producer.Close)
	require.NoError(t, EnsureTopic(ctx, producer, topic, 1, 1))
	require.NoError(t, EnsureTopic(ctx, producer, topic, 1, 1), "existing topic is accepted")

	p := New(producer, topic, redact.Default(), WithLogger(slog.New(slog.DiscardHandler)))
	rec := sampleRecord()
	p.Publish(ctx, []audit.MutationRecord{rec})
	require.NoError(t, producer.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	var got *kgo.Record
	for got == nil {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			if got == nil {
				got = r
			}
		})
	}

	assert.Equal(t, "admin_users:3", string(got.Key))
	var msg Message
	require.NoError(t, json.Unmarshal(got.Value, &msg))
	assert.Equal(t, rec.ID, msg.Record.ID)
	assert.NotEqual(t, "new", msg.Record.NewImage["password_hash"])
}
