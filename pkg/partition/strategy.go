package partition

import (
	"fmt"
	"math"
	"strings"

	kerrors "github.com/dpblh/kite/internal/errors"
)

// Strategy is a sealed, ordered sequence of field transforms. Transform
// order defines the order of key values and the nesting depth of
// hierarchical layouts. A Strategy is immutable and safe for concurrent
// use.
type Strategy struct {
	transforms []Transform
}

// New creates a sealed strategy from transforms. An empty transform list is
// rejected with ErrEmptyStrategy; unpartitioned datasets use a nil
// *Strategy instead.
func New(transforms ...Transform) (*Strategy, error) {
	if len(transforms) == 0 {
		return nil, kerrors.NewValidationError(kerrors.CodeEmptyStrategy, "partition strategy requires at least one transform")
	}
	for i, t := range transforms {
		if t.kind == 0 {
			return nil, kerrors.Newf(kerrors.ErrCategoryValidation, kerrors.CodeInvalidTransform,
				"transform %d is the zero value", i)
		}
	}
	cp := make([]Transform, len(transforms))
	copy(cp, transforms)
	return &Strategy{transforms: cp}, nil
}

// Len returns the number of transforms. A nil strategy has none.
func (s *Strategy) Len() int {
	if s == nil {
		return 0
	}
	return len(s.transforms)
}

// Transform returns the i-th transform.
func (s *Strategy) Transform(i int) Transform {
	return s.transforms[i]
}

// Transforms returns a copy of the transform sequence.
func (s *Strategy) Transforms() []Transform {
	if s == nil {
		return nil
	}
	cp := make([]Transform, len(s.transforms))
	copy(cp, s.transforms)
	return cp
}

// FieldNames returns the source field of each transform, in order.
func (s *Strategy) FieldNames() []string {
	names := make([]string, s.Len())
	for i := range names {
		names[i] = s.transforms[i].name
	}
	return names
}

// Cardinality returns the product of the transforms' cardinalities: the
// number of partitions the strategy can produce. It returns Unknown if any
// transform's cardinality is unknown, and ErrCardinalityOverflow if the
// product does not fit in an int64.
//
// A nil strategy describes a single root partition and has cardinality 1.
func (s *Strategy) Cardinality() (int64, error) {
	if s == nil {
		return 1, nil
	}
	for _, t := range s.transforms {
		if t.Cardinality() == Unknown {
			return Unknown, nil
		}
	}
	total := int64(1)
	for _, t := range s.transforms {
		c := t.Cardinality()
		if total > math.MaxInt64/c {
			return 0, kerrors.Newf(kerrors.ErrCategoryPartition, kerrors.CodeCardinalityOverflow,
				"cardinality of %s exceeds %d", s, int64(math.MaxInt64))
		}
		total *= c
	}
	return total, nil
}

// Key derives the partition key of entity. Each transform's field is
// resolved through accessor (DefaultAccessor when nil) and mapped by the
// transform; the key holds one value per transform, in order.
//
// Accessor failures are returned as FieldNotFound or AccessDenied errors
// naming the field; FieldOf recovers the name. A nil strategy returns the
// empty key without reading the entity.
func (s *Strategy) Key(entity interface{}, accessor FieldAccessor) (Key, error) {
	if s == nil {
		return Key{}, nil
	}
	if accessor == nil {
		accessor = DefaultAccessor
	}
	values := make([]interface{}, len(s.transforms))
	for i, t := range s.transforms {
		raw, err := accessor.FieldValue(entity, t.name)
		if err != nil {
			return Key{}, attribute(err, t.name, i, entity)
		}
		v, err := t.Apply(raw)
		if err != nil {
			return Key{}, attribute(err, t.name, i, entity)
		}
		values[i] = v
	}
	return Key{values: values}, nil
}

// Subpartition returns the strategy covering transforms [start, Len()).
// start == 0 returns s itself and start == Len() returns nil, marking the
// leaf level of a hierarchical layout. Any other start outside [0, Len()]
// fails with ErrIndexOutOfRange.
func (s *Strategy) Subpartition(start int) (*Strategy, error) {
	n := s.Len()
	switch {
	case start < 0 || start > n:
		return nil, kerrors.Newf(kerrors.ErrCategoryPartition, kerrors.CodeIndexOutOfRange,
			"subpartition start %d outside [0, %d]", start, n)
	case start == 0:
		return s, nil
	case start == n:
		return nil, nil
	}
	// Transforms are never mutated, so the suffix can share storage.
	return &Strategy{transforms: s.transforms[start:n:n]}, nil
}

func (s *Strategy) String() string {
	if s == nil {
		return "Strategy[]"
	}
	parts := make([]string, len(s.transforms))
	for i, t := range s.transforms {
		parts[i] = t.String()
	}
	return "Strategy[" + strings.Join(parts, ", ") + "]"
}

// GoString supports %#v in test failure output.
func (s *Strategy) GoString() string {
	return fmt.Sprintf("partition.%s", s.String())
}
