package config

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dpblh/kite/pkg/partition"
)

// Transform types accepted in dataset.partitioning.
const (
	TransformHash     = "hash"
	TransformIdentity = "identity"
	TransformIntRange = "int_range"
	TransformRange    = "range"
)

// Bound types for range transforms.
const (
	BoundAuto   = ""
	BoundInt    = "int"
	BoundFloat  = "float"
	BoundString = "string"
	BoundTime   = "time"
)

// FieldSpec declares one field transform of a partition strategy.
type FieldSpec struct {
	// Type is hash, identity, int_range or range
	Type string `json:"type" yaml:"type"`

	// Field is the source field name
	Field string `json:"field" yaml:"field"`

	// Buckets is the bucket count of hash and identity transforms
	Buckets int `json:"buckets,omitempty" yaml:"buckets,omitempty"`

	// Bounds are the upper bounds of range transforms
	Bounds []interface{} `json:"bounds,omitempty" yaml:"bounds,omitempty"`

	// BoundType forces the type of range bounds; time bounds are RFC3339
	// strings
	BoundType string `json:"bound_type,omitempty" yaml:"bound_type,omitempty"`
}

// Strategy translates the partitioning descriptor into a sealed strategy.
// A dataset without partitioning yields a nil strategy.
func (c *Config) Strategy() (*partition.Strategy, error) {
	if len(c.Dataset.Partitioning) == 0 {
		return nil, nil
	}
	b := partition.NewBuilder()
	for i, spec := range c.Dataset.Partitioning {
		if err := spec.apply(b); err != nil {
			return nil, fmt.Errorf("transform %d (%s on %q): %w", i, spec.Type, spec.Field, err)
		}
	}
	return b.Build()
}

func (s FieldSpec) apply(b *partition.Builder) error {
	switch s.Type {
	case TransformHash:
		b.Hash(s.Field, s.Buckets)
	case TransformIdentity:
		b.Identity(s.Field, s.Buckets)
	case TransformIntRange:
		bounds := make([]int64, len(s.Bounds))
		for i, raw := range s.Bounds {
			n, err := toInt64(raw)
			if err != nil {
				return fmt.Errorf("bound %d: %w", i, err)
			}
			bounds[i] = n
		}
		b.IntRange(s.Field, bounds...)
	case TransformRange:
		bounds := make([]interface{}, len(s.Bounds))
		for i, raw := range s.Bounds {
			v, err := convertBound(raw, s.BoundType)
			if err != nil {
				return fmt.Errorf("bound %d: %w", i, err)
			}
			bounds[i] = v
		}
		b.Range(s.Field, bounds...)
	default:
		return fmt.Errorf("unknown transform type %q (must be hash, identity, int_range, or range)", s.Type)
	}
	return nil
}

// SpecFor describes a transform as a FieldSpec, the inverse of Strategy.
func SpecFor(t partition.Transform) FieldSpec {
	spec := FieldSpec{Type: t.Kind().String(), Field: t.Name(), Buckets: t.Buckets(), Bounds: t.Bounds()}
	for _, b := range spec.Bounds {
		if _, ok := b.(time.Time); ok {
			spec.BoundType = BoundTime
			break
		}
	}
	return spec
}

func convertBound(raw interface{}, boundType string) (interface{}, error) {
	switch boundType {
	case BoundAuto:
		if n, ok := raw.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			return n.Float64()
		}
		return raw, nil
	case BoundInt:
		return toInt64(raw)
	case BoundFloat:
		return toFloat64(raw)
	case BoundString:
		return fmt.Sprintf("%v", raw), nil
	case BoundTime:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case string:
			return time.Parse(time.RFC3339, v)
		}
		return nil, fmt.Errorf("time bound must be an RFC3339 string, got %T", raw)
	}
	return nil, fmt.Errorf("unknown bound_type %q", boundType)
}

func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		// float64(math.MaxInt64) rounds up to 2^63, itself out of range.
		if v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("%v overflows int64", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	}
	return 0, fmt.Errorf("expected an integer, got %T", raw)
}

func toFloat64(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	}
	return 0, fmt.Errorf("expected a number, got %T", raw)
}
