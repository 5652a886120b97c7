package manifest

import (
	"strings"

	"github.com/dpblh/kite/internal/layout"
)

// buildPrefixQuery selects the files of a dataset whose partition levels
// start with prefix. Each prefix segment becomes one EXISTS subquery against
// partition_levels, so pruning never parses paths in SQL and a value that is
// a string prefix of another ("user_id=3" vs "user_id=31") does not match.
func buildPrefixQuery(dataset string, prefix []layout.Segment) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(selectFilesSQL)
	b.WriteString(" WHERE f.dataset = ?")
	args := []interface{}{dataset}

	for level, seg := range prefix {
		b.WriteString(` AND EXISTS (
			SELECT 1 FROM partition_levels l
			WHERE l.file_id = f.file_id AND l.level = ? AND l.field = ? AND l.value = ?)`)
		args = append(args, level, seg.Field, seg.Value)
	}

	b.WriteString(" ORDER BY f.partition_path, f.created_at, f.file_id")
	return b.String(), args
}
