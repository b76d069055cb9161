package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"reflect"
	"slices"
)

// Image is a column-name to value map describing one row at one instant.
// Values are JSON-compatible: numbers are json.Number after decoding.
type Image map[string]any

// Clone returns a deep copy.
func (img Image) Clone() Image {
	if img == nil {
		return nil
	}
	out := make(Image, len(img))
	for k, v := range img {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// Keys returns the column names present in the image.
func (img Image) Keys() []string {
	return sortedKeys(maps.Keys(img))
}

// Equal reports deep equality after normalising both sides through JSON.
func (img Image) Equal(other Image) bool {
	a, errA := NormalizeImage(img)
	b, errB := NormalizeImage(other)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// MarshalImage encodes an image for storage. A nil image encodes to nil.
func MarshalImage(img Image) ([]byte, error) {
	if img == nil {
		return nil, nil
	}
	b, err := json.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return b, nil
}

// UnmarshalImage decodes a stored image. Empty input and JSON null decode to nil.
func UnmarshalImage(raw []byte) (Image, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var img Image
	if err := dec.Decode(&img); err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// NormalizeImage round-trips img through JSON so values compare the same way
// whether they came from Go structs or from storage.
func NormalizeImage(img Image) (Image, error) {
	if img == nil {
		return nil, nil
	}
	raw, err := MarshalImage(img)
	if err != nil {
		return nil, err
	}
	return UnmarshalImage(raw)
}

func sortedKeys(seq iter.Seq[string]) []string {
	keys := slices.Collect(seq)
	slices.Sort(keys)
	return keys
}
