package partition

import "errors"

// Builder accumulates transforms and seals them into a Strategy. A Builder
// is not safe for concurrent use; it belongs to the code constructing the
// strategy.
//
//	s, err := partition.NewBuilder().
//		Hash("user_id", 4).
//		Identity("event_type", 1).
//		Build()
type Builder struct {
	transforms []Transform
	errs       []error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Hash appends a hash transform on field name.
func (b *Builder) Hash(name string, buckets int) *Builder {
	return b.add(Hash(name, buckets))
}

// Identity appends an identity transform on field name.
func (b *Builder) Identity(name string, buckets int) *Builder {
	return b.add(Identity(name, buckets))
}

// IntRange appends an integer range transform on field name.
func (b *Builder) IntRange(name string, bounds ...int64) *Builder {
	return b.add(IntRange(name, bounds...))
}

// Range appends a range transform over ordered bounds on field name.
func (b *Builder) Range(name string, bounds ...interface{}) *Builder {
	return b.add(Range(name, bounds...))
}

// Add appends a prebuilt transform.
func (b *Builder) Add(t Transform) *Builder {
	return b.add(t, nil)
}

func (b *Builder) add(t Transform, err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.transforms = append(b.transforms, t)
	return b
}

// Build seals the accumulated transforms. Invalid transform parameters from
// any earlier call are reported here, joined. Each call returns an
// independent strategy.
func (b *Builder) Build() (*Strategy, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return New(b.transforms...)
}
