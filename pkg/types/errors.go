package types

import "errors"

// Record-related errors
var (
	// ErrUnknownField is returned when a field name is not part of a schema
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidValue is returned when a value does not match the field's type
	ErrInvalidValue = errors.New("invalid field value")
)
