package partition

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// family groups value types that can be ordered against each other.
type family uint8

const (
	familyNone family = iota
	familyNumber
	familyString
	familyTime
)

type numKind uint8

const (
	numInt numKind = iota
	// numUint holds unsigned integers that do not fit in int64.
	numUint
	numFloat
)

// number is a normalized numeric value.
type number struct {
	kind numKind
	i    int64
	u    uint64
	f    float64
}

func (n number) float() float64 {
	switch n.kind {
	case numUint:
		return float64(n.u)
	case numFloat:
		return n.f
	}
	return float64(n.i)
}

// toNumber normalizes Go numeric kinds and json.Number.
func toNumber(v interface{}) (number, bool) {
	switch x := v.(type) {
	case int:
		return number{kind: numInt, i: int64(x)}, true
	case int8:
		return number{kind: numInt, i: int64(x)}, true
	case int16:
		return number{kind: numInt, i: int64(x)}, true
	case int32:
		return number{kind: numInt, i: int64(x)}, true
	case int64:
		return number{kind: numInt, i: x}, true
	case uint:
		return fromUint(uint64(x)), true
	case uint8:
		return number{kind: numInt, i: int64(x)}, true
	case uint16:
		return number{kind: numInt, i: int64(x)}, true
	case uint32:
		return number{kind: numInt, i: int64(x)}, true
	case uint64:
		return fromUint(x), true
	case float32:
		return number{kind: numFloat, f: float64(x)}, true
	case float64:
		return number{kind: numFloat, f: x}, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return number{kind: numInt, i: i}, true
		}
		if f, err := x.Float64(); err == nil {
			return number{kind: numFloat, f: f}, true
		}
	}
	return number{}, false
}

func fromUint(u uint64) number {
	if u > math.MaxInt64 {
		return number{kind: numUint, u: u}
	}
	return number{kind: numInt, i: int64(u)}
}

func familyOf(v interface{}) family {
	if _, ok := toNumber(v); ok {
		return familyNumber
	}
	switch v.(type) {
	case string:
		return familyString
	case time.Time:
		return familyTime
	}
	return familyNone
}

// compareValues orders two values of the same family.
func compareValues(a, b interface{}) (int, error) {
	fa, fb := familyOf(a), familyOf(b)
	if fa == familyNone || fa != fb {
		return 0, fmt.Errorf("cannot compare %T with %T", a, b)
	}
	switch fa {
	case familyString:
		return strings.Compare(a.(string), b.(string)), nil
	case familyTime:
		return a.(time.Time).Compare(b.(time.Time)), nil
	}
	na, _ := toNumber(a)
	nb, _ := toNumber(b)
	return compareNumbers(na, nb)
}

func compareNumbers(a, b number) (int, error) {
	switch {
	case a.kind == numFloat || b.kind == numFloat:
		fa, fb := a.float(), b.float()
		if math.IsNaN(fa) || math.IsNaN(fb) {
			return 0, fmt.Errorf("NaN is not ordered")
		}
		return cmp.Compare(fa, fb), nil
	case a.kind == numUint && b.kind == numUint:
		return cmp.Compare(a.u, b.u), nil
	case a.kind == numUint:
		return 1, nil
	case b.kind == numUint:
		return -1, nil
	}
	return cmp.Compare(a.i, b.i), nil
}
