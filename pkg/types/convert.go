package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// MarshalJSON encodes the record as an object keyed by field name.
func (r *Record) MarshalJSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(r.Map())
}

// Coerce converts a value decoded from JSON into the Go representation of
// the field type: numbers become int/int64/float64, timestamps are parsed
// from RFC3339 strings and bytes from base64.
func (t FieldType) Coerce(raw interface{}) (interface{}, error) {
	if raw == nil || t.Accepts(raw) {
		return raw, nil
	}

	switch t {
	case TypeInt, TypeLong:
		n, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		if t == TypeInt {
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, fmt.Errorf("%w: %d overflows int", ErrInvalidValue, n)
			}
			return int32(n), nil
		}
		return n, nil
	case TypeDouble:
		switch v := raw.(type) {
		case json.Number:
			return v.Float64()
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case TypeTimestamp:
		switch v := raw.(type) {
		case string:
			return time.Parse(time.RFC3339Nano, v)
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, err
			}
			return time.UnixMilli(n).UTC(), nil
		}
	case TypeBytes:
		if s, ok := raw.(string); ok {
			return base64.StdEncoding.DecodeString(s)
		}
	}
	return nil, fmt.Errorf("%w: cannot convert %T to %s", ErrInvalidValue, raw, t)
}

// RecordFromJSON creates a record from a decoded JSON object, coercing each
// value to its field type.
func RecordFromJSON(schema *Schema, m map[string]interface{}) (*Record, error) {
	r := NewRecord(schema)
	for k, raw := range m {
		f, ok := schema.Field(k)
		if !ok {
			return nil, fmt.Errorf("%w: %q in schema %s", ErrUnknownField, k, schema.Name)
		}
		v, err := f.Type.Coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		if err := r.Put(k, v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not an integer", ErrInvalidValue, v)
		}
		return n, nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, v)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	}
	return 0, fmt.Errorf("%w: cannot convert %T to an integer", ErrInvalidValue, raw)
}
