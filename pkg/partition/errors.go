package partition

import (
	"errors"
	"fmt"

	kerrors "github.com/dpblh/kite/internal/errors"
)

// Sentinel errors for errors.Is. Matching is by category and code, so any
// error produced by this package with the same kind matches its sentinel.
var (
	ErrFieldNotFound       = kerrors.NewAccessError(kerrors.CodeFieldNotFound, "field not found", nil)
	ErrAccessDenied        = kerrors.NewAccessError(kerrors.CodeAccessDenied, "field access denied", nil)
	ErrTypeMismatch        = kerrors.NewPartitionError(kerrors.CodeTypeMismatch, "type mismatch")
	ErrOutOfDomain         = kerrors.NewPartitionError(kerrors.CodeOutOfDomain, "value out of domain")
	ErrCardinalityOverflow = kerrors.NewPartitionError(kerrors.CodeCardinalityOverflow, "cardinality overflow")
	ErrIndexOutOfRange     = kerrors.NewPartitionError(kerrors.CodeIndexOutOfRange, "index out of range")
	ErrEmptyStrategy       = kerrors.NewValidationError(kerrors.CodeEmptyStrategy, "strategy has no transforms")
	ErrInvalidTransform    = kerrors.NewValidationError(kerrors.CodeInvalidTransform, "invalid transform")
)

// Detail keys attached to key-derivation errors.
const (
	detailField  = "field"
	detailIndex  = "index"
	detailEntity = "entity"
)

// FieldOf returns the name of the field a key-derivation error is
// attributed to.
func FieldOf(err error) (string, bool) {
	v, ok := kerrors.GetDetail(err, detailField)
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

// NotFound returns a FieldNotFound error for use by FieldAccessor
// implementations outside this package.
func NotFound(entity interface{}, name string) error {
	return kerrors.NewAccessError(kerrors.CodeFieldNotFound,
		fmt.Sprintf("%s has no field %q", describeEntity(entity), name), nil).
		WithDetails(map[string]interface{}{detailField: name})
}

// Denied returns an AccessDenied error for use by FieldAccessor
// implementations outside this package.
func Denied(entity interface{}, name string, cause error) error {
	return kerrors.NewAccessError(kerrors.CodeAccessDenied,
		fmt.Sprintf("cannot read field %q of %s", name, describeEntity(entity)), cause).
		WithDetails(map[string]interface{}{detailField: name})
}

func invalidTransform(kind Kind, name, format string, args ...interface{}) error {
	return kerrors.Newf(kerrors.ErrCategoryValidation, kerrors.CodeInvalidTransform,
		"%s(%s): %s", kind, name, fmt.Sprintf(format, args...)).
		WithDetails(map[string]interface{}{detailField: name})
}

func typeMismatch(t Transform, value interface{}, want string) error {
	return kerrors.Newf(kerrors.ErrCategoryPartition, kerrors.CodeTypeMismatch,
		"%s transform on %q expects %s, got %T", t.kind, t.name, want, value).
		WithDetails(map[string]interface{}{detailField: t.name})
}

func outOfDomain(t Transform, value interface{}, cause error) error {
	return kerrors.Wrap(kerrors.ErrCategoryPartition, kerrors.CodeOutOfDomain,
		fmt.Sprintf("%s transform on %q cannot order %T against its bounds", t.kind, t.name, value), cause).
		WithDetails(map[string]interface{}{detailField: t.name})
}

// attribute annotates an error raised while deriving a key with the
// transform position and entity it concerns.
func attribute(err error, name string, index int, entity interface{}) error {
	details := map[string]interface{}{
		detailField:  name,
		detailIndex:  index,
		detailEntity: describeEntity(entity),
	}
	var ke *kerrors.KiteError
	if errors.As(err, &ke) {
		if ke == err {
			return ke.WithDetails(details)
		}
		// Keep the caller's wrapping in the chain and the message.
		return kerrors.Wrap(ke.Category, ke.Code,
			fmt.Sprintf("field %q (transform %d)", name, index), err).
			WithDetails(ke.Details).
			WithDetails(details)
	}
	// Accessors outside this package may return plain errors; an
	// unresolvable field is still reported as FieldNotFound.
	return kerrors.NewAccessError(kerrors.CodeFieldNotFound,
		fmt.Sprintf("cannot resolve field %q (transform %d) on %s", name, index, describeEntity(entity)), err).
		WithDetails(details)
}
