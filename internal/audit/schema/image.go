package schema

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"

	"alumni/internal/audit"
)

// omittedKey marks a binary value that was too large to keep in an image.
const omittedKey = "$omitted"

// ImageOf converts an entity (struct with json tags matching column names, a
// map, or an audit.Image) into an image holding only declared columns.
// Binary values larger than maxBinary bytes are replaced by an omission
// marker recording their size and digest; maxBinary <= 0 keeps everything.
// A nil entity yields a nil image.
func (t *Table) ImageOf(v any, maxBinary int) (audit.Image, error) {
	if isNil(v) {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s row: %w", t.Name, err)
	}
	all, err := audit.UnmarshalImage(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s row: %w", t.Name, err)
	}

	img := make(audit.Image, len(t.Columns))
	for _, c := range t.Columns {
		val, ok := all[c.Name]
		if !ok {
			continue
		}
		if c.Kind == KindBinary && val != nil && !IsOmitted(val) {
			val, err = capBinary(c, val, maxBinary)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
			}
		}
		img[c.Name] = val
	}
	return img, nil
}

func capBinary(c Column, val any, maxBinary int) (any, error) {
	s, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("binary column %s: want base64 string, got %T", c.Name, val)
	}
	if maxBinary <= 0 {
		return s, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("binary column %s: %w", c.Name, err)
	}
	if len(data) <= maxBinary {
		return s, nil
	}
	sum := sha256.Sum256(data)
	return map[string]any{
		omittedKey: "binary",
		"bytes":    json.Number(fmt.Sprint(len(data))),
		"sha256":   hex.EncodeToString(sum[:]),
	}, nil
}

// IsOmitted reports whether v is an omission marker.
func IsOmitted(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[omittedKey]
	return ok
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
