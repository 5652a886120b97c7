package partition

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/spaolacci/murmur3"
)

// Type tags keep values of different kinds with equal bytes apart.
const (
	tagInt    = 'i'
	tagUint   = 'u'
	tagFloat  = 'f'
	tagString = 's'
	tagBytes  = 'b'
	tagBool   = 't'
	tagTime   = 'T'
	tagOther  = 'v'
)

// hashValue computes murmur3 over a canonical encoding of v. Numerically
// equal integers hash alike regardless of their Go type, and so do floats
// holding an integral value.
func hashValue(v interface{}) uint64 {
	return murmur3.Sum64(canonicalBytes(v))
}

func canonicalBytes(v interface{}) []byte {
	if n, ok := toNumber(v); ok {
		if n.kind == numFloat && n.f == math.Trunc(n.f) && n.f >= math.MinInt64 && n.f < math.MaxInt64 {
			n = number{kind: numInt, i: int64(n.f)}
		}
		switch n.kind {
		case numInt:
			return tagged(tagInt, uint64(n.i))
		case numUint:
			return tagged(tagUint, n.u)
		default:
			return tagged(tagFloat, math.Float64bits(n.f))
		}
	}

	switch x := v.(type) {
	case string:
		return append([]byte{tagString}, x...)
	case []byte:
		return append([]byte{tagBytes}, x...)
	case bool:
		if x {
			return []byte{tagBool, 1}
		}
		return []byte{tagBool, 0}
	case time.Time:
		return tagged(tagTime, uint64(x.UnixNano()))
	case fmt.Stringer:
		return append([]byte{tagString}, x.String()...)
	}
	return append([]byte{tagOther}, fmt.Sprintf("%v", v)...)
}

func tagged(tag byte, u uint64) []byte {
	b := make([]byte, 9)
	b[0] = tag
	binary.BigEndian.PutUint64(b[1:], u)
	return b
}
