package partition

import (
	"fmt"

	"github.com/dpblh/kite/pkg/types"
)

// FieldAccessor resolves the value of a named field on an entity. It is the
// only place where the entity's representation matters. Implementations
// return a FieldNotFound error (see NotFound) when the entity has no such
// field and an AccessDenied error (see Denied) when it cannot be read.
type FieldAccessor interface {
	FieldValue(entity interface{}, name string) (interface{}, error)
}

// AccessorFunc adapts a function to FieldAccessor.
type AccessorFunc func(entity interface{}, name string) (interface{}, error)

// FieldValue calls f(entity, name).
func (f AccessorFunc) FieldValue(entity interface{}, name string) (interface{}, error) {
	return f(entity, name)
}

// RecordAccessor resolves fields of schema-described records
// (*types.Record, types.Record) and of map[string]interface{}.
type RecordAccessor struct{}

// FieldValue implements FieldAccessor. A field declared by the record's
// schema but never set resolves to nil; a field outside the schema is
// FieldNotFound.
func (RecordAccessor) FieldValue(entity interface{}, name string) (interface{}, error) {
	switch e := entity.(type) {
	case *types.Record:
		if e == nil {
			return nil, NotFound(entity, name)
		}
		if v, ok := e.Get(name); ok {
			return v, nil
		}
	case types.Record:
		if v, ok := e.Get(name); ok {
			return v, nil
		}
	case map[string]interface{}:
		if v, ok := e[name]; ok {
			return v, nil
		}
	default:
		return nil, Denied(entity, name, fmt.Errorf("record accessor does not support %T", entity))
	}
	return nil, NotFound(entity, name)
}

// DefaultAccessor resolves records and maps with RecordAccessor and any
// other entity by reflection.
var DefaultAccessor FieldAccessor = defaultAccessor{reflect: NewReflectAccessor()}

type defaultAccessor struct {
	reflect *ReflectAccessor
}

func (d defaultAccessor) FieldValue(entity interface{}, name string) (interface{}, error) {
	switch entity.(type) {
	case *types.Record, types.Record, map[string]interface{}:
		return RecordAccessor{}.FieldValue(entity, name)
	}
	return d.reflect.FieldValue(entity, name)
}

// describeEntity identifies an entity in error messages.
func describeEntity(entity interface{}) string {
	switch e := entity.(type) {
	case nil:
		return "nil entity"
	case *types.Record:
		if e != nil && e.Schema() != nil {
			return fmt.Sprintf("record %s", e.Schema().Name)
		}
	case types.Record:
		if e.Schema() != nil {
			return fmt.Sprintf("record %s", e.Schema().Name)
		}
	case fmt.Stringer:
		return fmt.Sprintf("%T %s", entity, e.String())
	}
	return fmt.Sprintf("%T", entity)
}
