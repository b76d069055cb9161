// Package coldstore holds the cold storage targets for archived ledger days.
package coldstore

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"time"

	"alumni/internal/audit"
	"alumni/internal/audit/store"
)

// encodeDay renders recs as gzip-compressed JSON lines.
func encodeDay(recs []audit.MutationRecord) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress archive: %w", err)
	}
	return buf.Bytes(), nil
}

func dayKey(day time.Time) string {
	return day.UTC().Format(store.DayLayout)
}
