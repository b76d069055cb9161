package schema

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrOmitted is returned by Coerce for values replaced by an omission marker.
// Restores skip such columns and keep the live value.
var ErrOmitted = errors.New("value omitted from image")

// Coerce converts an image value to the driver value for the column.
func Coerce(c Column, v any) (any, error) {
	if v == nil {
		if !c.Nullable {
			return nil, fmt.Errorf("column %s is not nullable", c.Name)
		}
		return nil, nil
	}
	if IsOmitted(v) {
		return nil, ErrOmitted
	}

	var (
		out any
		err error
	)
	switch c.Kind {
	case KindText:
		out, err = toText(v)
	case KindInt:
		out, err = toInt(v)
	case KindNumeric:
		out, err = toFloat(v)
	case KindBool:
		out, err = toBool(v)
	case KindTime:
		out, err = toTime(v)
	case KindBinary:
		out, err = toBinary(v)
	case KindJSON:
		var raw []byte
		raw, err = json.Marshal(v)
		out = string(raw)
	default:
		err = fmt.Errorf("unknown kind %q", c.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", c.Name, err)
	}
	return out, nil
}

func toText(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool, int, int64, float64:
		return fmt.Sprint(x), nil
	}
	return "", fmt.Errorf("cannot use %T as text", v)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	return 0, fmt.Errorf("cannot use %T as int", v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("cannot use %T as numeric", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return false, err
		}
		return n != 0, nil
	case string:
		return strconv.ParseBool(x)
	}
	return false, fmt.Errorf("cannot use %T as bool", v)
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot use %T as time", v)
}

func toBinary(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return base64.StdEncoding.DecodeString(x)
	}
	return nil, fmt.Errorf("cannot use %T as binary", v)
}
