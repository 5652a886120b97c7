// Package layout maps partition keys to Hive-style directory paths
// (field=value/field=value) and back.
package layout

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	kerrors "github.com/dpblh/kite/internal/errors"
	"github.com/dpblh/kite/pkg/partition"
)

// NullValue is the path value written for a nil partition value.
const NullValue = "__HIVE_DEFAULT_PARTITION__"

// Segment is one level of a partition path.
type Segment struct {
	Field string
	Value string
}

func (s Segment) String() string {
	return escapeField(s.Field) + "=" + escapeValue(s.Value)
}

// SegmentOf returns the path segment for a value produced by t.
func SegmentOf(t partition.Transform, v interface{}) Segment {
	return Segment{Field: t.Name(), Value: formatValue(v)}
}

// Levels returns one segment per strategy level, outermost first. Each level
// is taken from the head of the sub-strategy that starts at that level, so
// the walk mirrors a directory descent.
func Levels(s *partition.Strategy, key partition.Key) ([]Segment, error) {
	if key.Len() != s.Len() {
		return nil, kerrors.Newf(kerrors.ErrCategoryValidation, kerrors.CodeInvalidConfig,
			"key has %d values, strategy has %d transforms", key.Len(), s.Len())
	}

	segments := make([]Segment, 0, s.Len())
	for cur := s; cur != nil; {
		segments = append(segments, SegmentOf(cur.Transform(0), key.Get(0)))

		next, err := cur.Subpartition(1)
		if err != nil {
			return nil, err
		}
		cur = next
		key = key.Suffix(1)
	}
	return segments, nil
}

// Path returns the relative directory of the partition identified by key.
// A nil strategy describes an unpartitioned dataset and yields "".
func Path(s *partition.Strategy, key partition.Key) (string, error) {
	if s == nil {
		return "", nil
	}
	segments, err := Levels(s, key)
	if err != nil {
		return "", err
	}
	return Join(segments), nil
}

// Join renders segments as a partition path.
func Join(segments []Segment) string {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = seg.String()
	}
	return strings.Join(parts, "/")
}

// Parse splits a partition path into its segments. The empty path is the
// root partition and has no segments.
func Parse(path string) ([]Segment, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}

	parts := strings.Split(path, "/")
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		field, value, ok := strings.Cut(part, "=")
		if !ok || field == "" {
			return nil, kerrors.Newf(kerrors.ErrCategoryValidation, kerrors.CodeInvalidConfig,
				"invalid partition segment %q in %q", part, path)
		}
		f, err := url.PathUnescape(field)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.ErrCategoryValidation, kerrors.CodeInvalidConfig,
				fmt.Sprintf("invalid partition field %q", field), err)
		}
		v, err := url.PathUnescape(value)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.ErrCategoryValidation, kerrors.CodeInvalidConfig,
				fmt.Sprintf("invalid partition value %q", value), err)
		}
		segments = append(segments, Segment{Field: f, Value: v})
	}
	return segments, nil
}

// HasPrefix reports whether the partition path starts with the given
// segments. An empty prefix matches every path.
func HasPrefix(segments, prefix []Segment) bool {
	if len(prefix) > len(segments) {
		return false
	}
	for i := range prefix {
		if segments[i] != prefix[i] {
			return false
		}
	}
	return true
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return NullValue
	case string:
		return val
	case []byte:
		return hex.EncodeToString(val)
	case time.Time:
		// Day-aligned values keep the short form used by date partitions.
		if val.Equal(val.Truncate(24 * time.Hour)) {
			return val.UTC().Format("2006-01-02")
		}
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func escapeValue(s string) string {
	return url.PathEscape(s)
}

// escapeField also escapes '=', which PathEscape leaves alone, so the first
// '=' of a segment always separates field from value.
func escapeField(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "=", "%3D")
}
