// Package ledger is the read side of the audit trail. Every record and
// snapshot leaving this package has been through the redaction filter.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"alumni/internal/audit"
	"alumni/internal/audit/redact"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/sentinel"
)

// RecordReader reads ledger records.
type RecordReader interface {
	Query(ctx context.Context, f audit.Filter) ([]audit.MutationRecord, error)
	Get(ctx context.Context, id uuid.UUID) (audit.MutationRecord, error)
}

// SnapshotReader reads row snapshots.
type SnapshotReader interface {
	ListByRow(ctx context.Context, table, rowKey string, limit int) ([]audit.RowSnapshot, error)
}

// ExecutionReader reads restore executions.
type ExecutionReader interface {
	ListByRow(ctx context.Context, table, rowKey string) ([]audit.RestoreExecutionRecord, error)
}

// Client is a parsed user agent.
type Client struct {
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	Mobile  bool   `json:"mobile,omitempty"`
	Bot     bool   `json:"bot,omitempty"`
}

// View is a redacted ledger record for display.
type View struct {
	audit.MutationRecord
	Client Client `json:"client"`
}

// Service answers ledger queries.
type Service struct {
	records    RecordReader
	snapshots  SnapshotReader
	executions ExecutionReader
	redactor   *redact.Filter
}

func NewService(records RecordReader, snapshots SnapshotReader, executions ExecutionReader, redactor *redact.Filter) *Service {
	return &Service{records: records, snapshots: snapshots, executions: executions, redactor: redactor}
}

// Query lists redacted records matching f.
func (s *Service) Query(ctx context.Context, f audit.Filter) ([]View, error) {
	if err := f.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	recs, err := s.records.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	views := make([]View, len(recs))
	for i, r := range recs {
		views[i] = s.view(r)
	}
	return views, nil
}

// Get returns one redacted record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (View, error) {
	rec, err := s.records.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return View{}, dErrors.Wrap(err, dErrors.CodeNotFound, "mutation record not found")
	}
	if err != nil {
		return View{}, fmt.Errorf("get ledger record: %w", err)
	}
	return s.view(rec), nil
}

// Snapshots lists the redacted snapshots of one row, newest first.
func (s *Service) Snapshots(ctx context.Context, table, rowKey string, limit int) ([]audit.RowSnapshot, error) {
	if table == "" || rowKey == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "table and row_key are required")
	}
	snaps, err := s.snapshots.ListByRow(ctx, table, rowKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	for i := range snaps {
		snaps[i] = s.redactor.Snapshot(snaps[i])
	}
	return snaps, nil
}

// Executions lists the restores applied to one row.
func (s *Service) Executions(ctx context.Context, table, rowKey string) ([]audit.RestoreExecutionRecord, error) {
	if table == "" || rowKey == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "table and row_key are required")
	}
	recs, err := s.executions.ListByRow(ctx, table, rowKey)
	if err != nil {
		return nil, fmt.Errorf("list restore executions: %w", err)
	}
	return recs, nil
}

func (s *Service) view(rec audit.MutationRecord) View {
	return View{MutationRecord: s.redactor.Record(rec), Client: summarize(rec.UserAgent)}
}

func summarize(raw string) Client {
	if raw == "" {
		return Client{}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	browser := name
	if version != "" {
		browser += " " + version
	}
	return Client{Browser: browser, OS: ua.OS(), Mobile: ua.Mobile(), Bot: ua.Bot()}
}
