package audit

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Filter selects ledger entries. Zero fields do not constrain.
type Filter struct {
	TableName string
	ActorID   string
	RequestID string
	RowKey    string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// Validate normalises limits and rejects inverted ranges.
func (f *Filter) Validate() error {
	f.TableName = strings.TrimSpace(f.TableName)
	f.ActorID = strings.TrimSpace(f.ActorID)
	f.RequestID = strings.TrimSpace(f.RequestID)
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return fmt.Errorf("time range: to %s is before from %s", f.To.Format(time.RFC3339), f.From.Format(time.RFC3339))
	}
	if f.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	return nil
}
