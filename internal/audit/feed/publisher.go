// Package feed streams committed ledger records to Kafka for downstream
// consumers (SIEM, reporting). Delivery is best effort: the ledger table is
// authoritative and a broker outage never blocks a business write.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"alumni/internal/audit"
	"alumni/internal/audit/redact"
)

// Producer is the subset of *kgo.Client the publisher uses.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Publisher produces redacted records asynchronously.
type Publisher struct {
	producer Producer
	topic    string
	redactor *redact.Filter
	breaker  *CircuitBreaker
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithCircuitBreaker replaces the default breaker.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) { p.breaker = cb }
}

func New(producer Producer, topic string, redactor *redact.Filter, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		redactor: redactor,
		breaker:  NewCircuitBreaker(5, 30*time.Second),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Message is the wire format of one feed entry.
type Message struct {
	Version int                  `json:"version"`
	Record  audit.MutationRecord `json:"record"`
}

// Publish produces one message per record, keyed by table and row so a row's
// history stays ordered within a partition. It never blocks on the broker.
func (p *Publisher) Publish(ctx context.Context, records []audit.MutationRecord) {
	for _, rec := range records {
		if !p.breaker.Allow() {
			p.metrics.incDropped()
			continue
		}
		value, err := json.Marshal(Message{Version: 1, Record: p.redactor.Record(rec)})
		if err != nil {
			p.logger.ErrorContext(ctx, "encode feed message", "record_id", rec.ID, "error", err)
			continue
		}
		r := &kgo.Record{
			Topic: p.topic,
			Key:   []byte(rec.TableName + ":" + rec.RowKey),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "request_id", Value: []byte(rec.RequestID)},
				{Key: "operation", Value: []byte(rec.Operation)},
			},
		}
		recordID := rec.ID
		p.producer.Produce(ctx, r, func(_ *kgo.Record, err error) {
			if err != nil {
				p.metrics.incFailure()
				if p.breaker.RecordFailure() {
					p.metrics.setOpen(true)
					p.logger.Warn("change feed circuit opened", "topic", p.topic)
				}
				p.logger.Warn("change feed delivery failed", "record_id", recordID, "error", err)
				return
			}
			if p.breaker.IsOpen() {
				p.metrics.setOpen(false)
			}
			p.breaker.RecordSuccess()
			p.metrics.incPublished()
		})
	}
}

// NewClient builds a franz-go producer client for the feed topic.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(20*time.Millisecond),
		kgo.RecordDeliveryTimeout(30*time.Second),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates the feed topic if it does not exist.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	retention := "2592000000" // 30 days, matching the ledger window
	resp, err := adm.CreateTopic(ctx, partitions, replication, map[string]*string{"retention.ms": &retention}, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}
