// Package types provides core data types for kite datasets.
package types

import "fmt"

// FieldType is the logical type of a schema field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInt       FieldType = "int"
	TypeLong      FieldType = "long"
	TypeDouble    FieldType = "double"
	TypeBoolean   FieldType = "boolean"
	TypeBytes     FieldType = "bytes"
	TypeTimestamp FieldType = "timestamp"
)

// Schema describes the structure of the records in a dataset.
type Schema struct {
	// Name identifies the record type (e.g., "events")
	Name string `json:"name" yaml:"name"`

	// Version tracks schema evolution for backward compatibility
	Version int `json:"version" yaml:"version"`

	// Fields defines the fields in declaration order
	Fields []FieldDef `json:"fields" yaml:"fields"`

	index map[string]int
}

// FieldDef defines a single field in the schema.
type FieldDef struct {
	// Name is the field name
	Name string `json:"name" yaml:"name"`

	// Type is the logical type of the field
	Type FieldType `json:"type" yaml:"type"`

	// Nullable indicates whether the field can hold a nil value
	Nullable bool `json:"nullable" yaml:"nullable"`
}

// NewSchema creates a schema and indexes its fields by name.
// Duplicate or empty field names are rejected.
func NewSchema(name string, fields ...FieldDef) (*Schema, error) {
	s := &Schema{Name: name, Version: 1, Fields: fields}
	if err := s.buildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Intended for tests and
// package-level declarations.
func MustSchema(name string, fields ...FieldDef) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) buildIndex() error {
	s.index = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: field %d has empty name", s.Name, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return fmt.Errorf("schema %s: duplicate field %q", s.Name, f.Name)
		}
		s.index[f.Name] = i
	}
	return nil
}

// FieldIndex returns the position of the named field.
func (s *Schema) FieldIndex(name string) (int, bool) {
	if s == nil {
		return -1, false
	}
	if s.index == nil {
		// Schemas decoded from JSON/YAML skip NewSchema.
		for i, f := range s.Fields {
			if f.Name == name {
				return i, true
			}
		}
		return -1, false
	}
	i, ok := s.index[name]
	return i, ok
}

// Field returns the definition of the named field.
func (s *Schema) Field(name string) (FieldDef, bool) {
	i, ok := s.FieldIndex(name)
	if !ok {
		return FieldDef{}, false
	}
	return s.Fields[i], true
}
