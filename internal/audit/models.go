package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of row mutation.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// ParseOperation validates an operation name.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpInsert, OpUpdate, OpDelete:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOperationKind, s)
	}
}

// SnapshotSide picks which image of a snapshot a restore applies.
type SnapshotSide string

const (
	SideOld SnapshotSide = "OLD"
	SideNew SnapshotSide = "NEW"
)

// ParseSide validates a snapshot side, defaulting the empty string to OLD.
func ParseSide(s string) (SnapshotSide, error) {
	switch side := SnapshotSide(s); side {
	case "":
		return SideOld, nil
	case SideOld, SideNew:
		return side, nil
	default:
		return "", fmt.Errorf("snapshot side %q: want OLD or NEW", s)
	}
}

// Actor is the acting identity stamped on every record.
type Actor struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// MutationRecord is one immutable ledger entry describing a single row change.
type MutationRecord struct {
	ID            uuid.UUID `json:"id"`
	OccurredAt    time.Time `json:"occurred_at"`
	TableName     string    `json:"table_name"`
	Operation     Operation `json:"operation"`
	RowKey        string    `json:"row_key"`
	ChangedFields []string  `json:"changed_fields"`
	OldImage      Image     `json:"old_image,omitempty"`
	NewImage      Image     `json:"new_image,omitempty"`
	Actor         Actor     `json:"actor"`
	RequestID     string    `json:"request_id"`
	ClientIP      string    `json:"client_ip,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	HTTPMethod    string    `json:"http_method,omitempty"`
	HTTPPath      string    `json:"http_path,omitempty"`
	// HTTPStatus and LatencyMS are filled on read from the request's completion, if any.
	HTTPStatus *int   `json:"http_status,omitempty"`
	LatencyMS  *int64 `json:"latency_ms,omitempty"`
}

// RowSnapshot holds restorable images of one row for one mutation.
type RowSnapshot struct {
	ID         uuid.UUID `json:"id"`
	MutationID uuid.UUID `json:"mutation_id"`
	OccurredAt time.Time `json:"occurred_at"`
	TableName  string    `json:"table_name"`
	Operation  Operation `json:"operation"`
	RowKey     string    `json:"row_key"`
	OldImage   Image     `json:"old_image,omitempty"`
	NewImage   Image     `json:"new_image,omitempty"`
	Actor      Actor     `json:"actor"`
	RequestID  string    `json:"request_id"`
}

// ImageFor returns the chosen side, or ErrSnapshotEmpty when it is absent.
func (s RowSnapshot) ImageFor(side SnapshotSide) (Image, error) {
	img := s.OldImage
	if side == SideNew {
		img = s.NewImage
	}
	if img == nil {
		return nil, fmt.Errorf("%w: %s image of snapshot %s", ErrSnapshotEmpty, side, s.ID)
	}
	return img, nil
}

// RestoreExecutionRecord documents one completed restore.
type RestoreExecutionRecord struct {
	ID               uuid.UUID    `json:"id"`
	ExecutedAt       time.Time    `json:"executed_at"`
	Actor            Actor        `json:"actor"`
	TableName        string       `json:"table_name"`
	RowKey           string       `json:"row_key"`
	SourceSnapshotID uuid.UUID    `json:"source_snapshot_id"`
	SnapshotSide     SnapshotSide `json:"snapshot_side"`
	SessionID        uuid.UUID    `json:"session_id"`
	RequestID        string       `json:"request_id"`
	Note             string       `json:"note,omitempty"`
}

// Completion is the post-response outcome of a request.
type Completion struct {
	RequestID   string
	HTTPStatus  int
	LatencyMS   int64
	CompletedAt time.Time
}

// Timestamp normalises t to the precision and zone every store round-trips.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NewID returns a time-ordered identifier so records written within one
// timestamp still sort in write order.
func NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
