package partition

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Key is an ordered composite of partition values. The i-th value was
// produced by the i-th transform of the strategy that derived the key, so
// keys from different strategies are not comparable.
type Key struct {
	values []interface{}
}

// NewKey creates a key from partition values, e.g. when parsing a partition
// path back into a key.
func NewKey(values ...interface{}) Key {
	cp := make([]interface{}, len(values))
	copy(cp, values)
	return Key{values: cp}
}

// Len returns the number of values in the key.
func (k Key) Len() int { return len(k.values) }

// Get returns the i-th partition value.
func (k Key) Get(i int) interface{} { return k.values[i] }

// Values returns a copy of the partition values.
func (k Key) Values() []interface{} {
	cp := make([]interface{}, len(k.values))
	copy(cp, k.values)
	return cp
}

// Suffix returns the key values from start on, aligned with
// Strategy.Subpartition(start).
func (k Key) Suffix(start int) Key {
	if start <= 0 {
		return k
	}
	if start >= len(k.values) {
		return Key{}
	}
	return Key{values: k.values[start:len(k.values):len(k.values)]}
}

// Equal reports whether both keys hold equal values in the same order.
func (k Key) Equal(other Key) bool {
	if len(k.values) != len(other.values) {
		return false
	}
	for i := range k.values {
		if !reflect.DeepEqual(k.values[i], other.values[i]) {
			return false
		}
	}
	return true
}

// Equivalent reports whether both keys name the same partition. Unlike
// Equal it treats values of one ordered family as interchangeable, so
// int64(1) and 1.0 are equivalent while "1" and 1 are not.
func (k Key) Equivalent(other Key) bool {
	if len(k.values) != len(other.values) {
		return false
	}
	for i := range k.values {
		a, b := k.values[i], other.values[i]
		if reflect.DeepEqual(a, b) || (isNaN(a) && isNaN(b)) {
			continue
		}
		if c, err := compareValues(a, b); err != nil || c != 0 {
			return false
		}
	}
	return true
}

func isNaN(v interface{}) bool {
	switch f := v.(type) {
	case float64:
		return math.IsNaN(f)
	case float32:
		return math.IsNaN(float64(f))
	}
	return false
}

func (k Key) String() string {
	parts := make([]string, len(k.values))
	for i, v := range k.values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
