package types

import (
	"fmt"
	"time"
)

// Record is a schema-described entity. Values are stored positionally in
// schema field order.
type Record struct {
	schema *Schema
	values []interface{}
}

// NewRecord creates an empty record for the given schema.
func NewRecord(schema *Schema) *Record {
	return &Record{
		schema: schema,
		values: make([]interface{}, len(schema.Fields)),
	}
}

// RecordFromMap creates a record from a map of field values. Keys that are
// not part of the schema are rejected.
func RecordFromMap(schema *Schema, m map[string]interface{}) (*Record, error) {
	r := NewRecord(schema)
	for k, v := range m {
		if err := r.Put(k, v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema {
	return r.schema
}

// Put sets the value of a field. The value must be assignable to the field's
// logical type.
func (r *Record) Put(name string, value interface{}) error {
	if r.schema == nil {
		return fmt.Errorf("%w: %q in a record without schema", ErrUnknownField, name)
	}
	i, ok := r.schema.FieldIndex(name)
	if !ok {
		return fmt.Errorf("%w: %q in schema %s", ErrUnknownField, name, r.schema.Name)
	}
	f := r.schema.Fields[i]
	if value == nil {
		if !f.Nullable {
			return fmt.Errorf("%w: field %q is not nullable", ErrInvalidValue, name)
		}
		r.values[i] = nil
		return nil
	}
	if !f.Type.Accepts(value) {
		return fmt.Errorf("%w: field %q of type %s cannot hold %T", ErrInvalidValue, name, f.Type, value)
	}
	r.values[i] = value
	return nil
}

// Get returns the value of a field and whether the field is part of the
// schema. A schema field that was never set returns (nil, true).
func (r *Record) Get(name string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	i, ok := r.schema.FieldIndex(name)
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Map returns the record's values keyed by field name.
func (r *Record) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.values))
	if r.schema == nil {
		return m
	}
	for i, f := range r.schema.Fields {
		m[f.Name] = r.values[i]
	}
	return m
}

// Accepts reports whether v is a valid Go representation of the type.
func (t FieldType) Accepts(v interface{}) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInt:
		switch v.(type) {
		case int, int8, int16, int32, uint8, uint16:
			return true
		}
	case TypeLong:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			return true
		}
	case TypeDouble:
		switch v.(type) {
		case float32, float64:
			return true
		}
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeBytes:
		_, ok := v.([]byte)
		return ok
	case TypeTimestamp:
		_, ok := v.(time.Time)
		return ok
	}
	return false
}
