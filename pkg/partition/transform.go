// Package partition derives composite partition keys for dataset records.
//
// A Strategy is an ordered, immutable sequence of field transforms. Each
// transform reads one named field of an entity through a FieldAccessor and
// maps its value to a partition value; the values form a Key whose i-th
// element belongs to the i-th transform. Strategies also report how many
// distinct partitions they can produce and expose suffix sub-strategies for
// hierarchical (one directory level per transform) layouts.
package partition

import (
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// Kind identifies a transform variant.
type Kind uint8

const (
	KindIdentity Kind = iota + 1
	KindHash
	KindIntRange
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindHash:
		return "hash"
	case KindIntRange:
		return "int_range"
	case KindRange:
		return "range"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Unknown is the cardinality of a transform whose number of distinct
// outputs is not known.
const Unknown int64 = -1

// Transform maps the value of one named field to a partition value.
// The zero value is not usable; build transforms with Identity, Hash,
// IntRange or Range.
type Transform struct {
	kind      Kind
	name      string
	buckets   int64
	intBounds []int64
	bounds    []interface{}
	family    family
}

// Identity returns a transform that passes the field value through
// unchanged. buckets is descriptive only; buckets <= 0 declares an unknown
// cardinality.
func Identity(name string, buckets int) (Transform, error) {
	if name == "" {
		return Transform{}, invalidTransform(KindIdentity, name, "field name is empty")
	}
	card := Unknown
	if buckets > 0 {
		card = int64(buckets)
	}
	return Transform{kind: KindIdentity, name: name, buckets: card}, nil
}

// Hash returns a transform that maps a value to murmur3(value) mod buckets.
func Hash(name string, buckets int) (Transform, error) {
	if name == "" {
		return Transform{}, invalidTransform(KindHash, name, "field name is empty")
	}
	if buckets <= 0 {
		return Transform{}, invalidTransform(KindHash, name, "buckets must be > 0, got %d", buckets)
	}
	return Transform{kind: KindHash, name: name, buckets: int64(buckets)}, nil
}

// IntRange returns a transform that maps an integer to the index of the
// first upper bound >= value. Values above the last bound map to the
// overflow bucket len(bounds). Bounds must be strictly increasing.
func IntRange(name string, bounds ...int64) (Transform, error) {
	if name == "" {
		return Transform{}, invalidTransform(KindIntRange, name, "field name is empty")
	}
	if len(bounds) == 0 {
		return Transform{}, invalidTransform(KindIntRange, name, "at least one upper bound is required")
	}
	for i := 1; i < len(bounds); i++ {
		if bounds[i] <= bounds[i-1] {
			return Transform{}, invalidTransform(KindIntRange, name,
				"bounds must be strictly increasing, %d follows %d", bounds[i], bounds[i-1])
		}
	}
	cp := make([]int64, len(bounds))
	copy(cp, bounds)
	return Transform{kind: KindIntRange, name: name, intBounds: cp, buckets: int64(len(cp)) + 1}, nil
}

// Range is IntRange generalized to any ordered value: integers, floats,
// strings and time.Time. All bounds must belong to the same family and be
// strictly increasing.
func Range(name string, bounds ...interface{}) (Transform, error) {
	if name == "" {
		return Transform{}, invalidTransform(KindRange, name, "field name is empty")
	}
	if len(bounds) == 0 {
		return Transform{}, invalidTransform(KindRange, name, "at least one upper bound is required")
	}
	fam := familyOf(bounds[0])
	if fam == familyNone {
		return Transform{}, invalidTransform(KindRange, name, "bound of type %T is not ordered", bounds[0])
	}
	for i, b := range bounds {
		if c, err := compareValues(b, b); err != nil || c != 0 {
			return Transform{}, invalidTransform(KindRange, name, "bound %d (%v) is not comparable with itself", i, b)
		}
	}
	for i := 1; i < len(bounds); i++ {
		c, err := compareValues(bounds[i-1], bounds[i])
		if err != nil {
			return Transform{}, invalidTransform(KindRange, name, "bound %d: %v", i, err)
		}
		if c >= 0 {
			return Transform{}, invalidTransform(KindRange, name,
				"bounds must be strictly increasing, %v follows %v", bounds[i], bounds[i-1])
		}
	}
	cp := make([]interface{}, len(bounds))
	copy(cp, bounds)
	return Transform{kind: KindRange, name: name, bounds: cp, family: fam, buckets: int64(len(cp)) + 1}, nil
}

// Name returns the name of the source field.
func (t Transform) Name() string { return t.name }

// Kind returns the transform variant.
func (t Transform) Kind() Kind { return t.kind }

// Cardinality returns the number of distinct partition values the transform
// can produce, or Unknown. Range transforms count the overflow bucket.
func (t Transform) Cardinality() int64 { return t.buckets }

// Buckets returns the declared bucket count of identity and hash
// transforms, and 0 for range transforms.
func (t Transform) Buckets() int {
	switch t.kind {
	case KindIdentity, KindHash:
		if t.buckets == Unknown {
			return 0
		}
		return int(t.buckets)
	}
	return 0
}

// Bounds returns a copy of the upper bounds of a range transform.
func (t Transform) Bounds() []interface{} {
	switch t.kind {
	case KindIntRange:
		out := make([]interface{}, len(t.intBounds))
		for i, b := range t.intBounds {
			out[i] = b
		}
		return out
	case KindRange:
		out := make([]interface{}, len(t.bounds))
		copy(out, t.bounds)
		return out
	}
	return nil
}

// Apply maps a field value to its partition value. Hash and range
// transforms produce an int bucket index.
func (t Transform) Apply(value interface{}) (interface{}, error) {
	switch t.kind {
	case KindIdentity:
		return value, nil
	case KindHash:
		return t.applyHash(value)
	case KindIntRange:
		return t.applyIntRange(value)
	case KindRange:
		return t.applyRange(value)
	default:
		return nil, invalidTransform(t.kind, t.name, "zero transform")
	}
}

func (t Transform) applyHash(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, typeMismatch(t, value, "a non-nil value")
	}
	h := hashValue(value)
	return int(h % uint64(t.buckets)), nil
}

func (t Transform) applyIntRange(value interface{}) (interface{}, error) {
	n, ok := toNumber(value)
	if !ok || n.kind == numFloat {
		return nil, typeMismatch(t, value, "an integer")
	}
	if n.kind == numUint {
		// Larger than any int64 bound.
		return len(t.intBounds), nil
	}
	return sort.Search(len(t.intBounds), func(i int) bool {
		return t.intBounds[i] >= n.i
	}), nil
}

func (t Transform) applyRange(value interface{}) (interface{}, error) {
	if familyOf(value) != t.family {
		return nil, outOfDomain(t, value, nil)
	}
	var cmpErr error
	idx := sort.Search(len(t.bounds), func(i int) bool {
		c, err := compareValues(t.bounds[i], value)
		if err != nil {
			cmpErr = err
			return true
		}
		return c >= 0
	})
	if cmpErr != nil {
		return nil, outOfDomain(t, value, cmpErr)
	}
	return idx, nil
}

// String renders the transform the way it is declared in configuration.
func (t Transform) String() string {
	switch t.kind {
	case KindIdentity, KindHash:
		return fmt.Sprintf("%s(%s, %d)", t.kind, t.name, t.Buckets())
	case KindIntRange, KindRange:
		return fmt.Sprintf("%s(%s, %v)", t.kind, t.name, t.Bounds())
	}
	return t.kind.String()
}

// MarshalJSON describes the transform for diagnostics output.
func (t Transform) MarshalJSON() ([]byte, error) {
	desc := struct {
		Type        string        `json:"type"`
		Field       string        `json:"field"`
		Buckets     int           `json:"buckets,omitempty"`
		Bounds      []interface{} `json:"bounds,omitempty"`
		Cardinality int64         `json:"cardinality"`
	}{
		Type:        t.kind.String(),
		Field:       t.name,
		Buckets:     t.Buckets(),
		Bounds:      t.Bounds(),
		Cardinality: t.buckets,
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(desc)
}
