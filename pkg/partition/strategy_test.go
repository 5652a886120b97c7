package partition

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	kerrors "github.com/dpblh/kite/internal/errors"
)

func mustStrategy(t *testing.T) func(*Strategy, error) *Strategy {
	return func(s *Strategy, err error) *Strategy {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error building strategy: %v", err)
		}
		return s
	}
}

func TestStrategy_HashIdentityScenario(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().
		Hash("user_id", 4).
		Identity("event_type", 1).
		Build())

	entity := map[string]interface{}{"user_id": 42, "event_type": "click"}
	key, err := s.Key(entity, nil)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}

	want := NewKey(int(hashValue(42)%4), "click")
	if !key.Equal(want) {
		t.Errorf("Key = %v, want %v", key, want)
	}
	if key.Len() != s.Len() {
		t.Errorf("key length %d != strategy length %d", key.Len(), s.Len())
	}
}

func TestStrategy_AgeOverflowScenario(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().IntRange("age", 18, 65).Build())

	key, err := s.Key(map[string]interface{}{"age": 70}, nil)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if !key.Equal(NewKey(2)) {
		t.Errorf("Key = %v, want [2]", key)
	}
}

func TestStrategy_MissingFieldNamesField(t *testing.T) {
	// "region" at every position of a three-transform strategy.
	others := []string{"user_id", "event_type"}
	for pos := 0; pos < 3; pos++ {
		b := NewBuilder()
		j := 0
		for i := 0; i < 3; i++ {
			if i == pos {
				b.Identity("region", 8)
				continue
			}
			b.Identity(others[j], 8)
			j++
		}
		s := mustStrategy(t)(b.Build())

		entity := map[string]interface{}{"user_id": 1, "event_type": "click"}
		_, err := s.Key(entity, nil)
		if !errors.Is(err, ErrFieldNotFound) {
			t.Fatalf("pos %d: expected ErrFieldNotFound, got %v", pos, err)
		}
		if name, ok := FieldOf(err); !ok || name != "region" {
			t.Errorf("pos %d: FieldOf = %q, %v; want region", pos, name, ok)
		}
		if idx, ok := kerrors.GetDetail(err, detailIndex); !ok || idx != pos {
			t.Errorf("pos %d: index detail = %v", pos, idx)
		}
	}
}

func TestStrategy_CustomAccessorErrorBecomesFieldNotFound(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().Identity("region", 4).Build())
	cause := errors.New("remote lookup failed")
	acc := AccessorFunc(func(interface{}, string) (interface{}, error) {
		return nil, cause
	})

	_, err := s.Key(struct{}{}, acc)
	if !errors.Is(err, ErrFieldNotFound) {
		t.Fatalf("expected ErrFieldNotFound, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("accessor cause should stay in the chain")
	}
	if name, _ := FieldOf(err); name != "region" {
		t.Errorf("FieldOf = %q, want region", name)
	}
}

func TestStrategy_AccessDeniedPropagates(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().Identity("secret", 4).Build())
	acc := AccessorFunc(func(e interface{}, name string) (interface{}, error) {
		return nil, Denied(e, name, nil)
	})

	_, err := s.Key(struct{}{}, acc)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if errors.Is(err, ErrFieldNotFound) {
		t.Error("AccessDenied must not be reported as FieldNotFound")
	}
}

func TestStrategy_WrappedAccessorErrorKeepsWrapping(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().Identity("region", 4).Build())
	acc := AccessorFunc(func(e interface{}, name string) (interface{}, error) {
		return nil, fmt.Errorf("remote lookup: %w", NotFound(e, name))
	})

	_, err := s.Key(struct{}{}, acc)
	if !errors.Is(err, ErrFieldNotFound) {
		t.Fatalf("expected ErrFieldNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "remote lookup") {
		t.Errorf("error %q lost the accessor's wrapping", err)
	}
	if name, _ := FieldOf(err); name != "region" {
		t.Errorf("FieldOf = %q, want region", name)
	}
}

func TestStrategy_TransformErrorIsAttributed(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().Identity("user_id", 4).IntRange("age", 18, 65).Build())

	_, err := s.Key(map[string]interface{}{"user_id": 1, "age": "old"}, nil)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	if name, _ := FieldOf(err); name != "age" {
		t.Errorf("FieldOf = %q, want age", name)
	}
}

func TestStrategy_NilValueIsNotMissing(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().Identity("region", 4).Build())

	key, err := s.Key(map[string]interface{}{"region": nil}, nil)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if key.Get(0) != nil {
		t.Errorf("Key = %v, want [<nil>]", key)
	}
}

func TestStrategy_Cardinality(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().
		Hash("user_id", 4).
		Identity("event_type", 3).
		IntRange("age", 18, 65).
		Build())

	got, err := s.Cardinality()
	if err != nil {
		t.Fatalf("Cardinality failed: %v", err)
	}
	if got != 4*3*3 {
		t.Errorf("Cardinality = %d, want %d", got, 4*3*3)
	}
}

func TestStrategy_NilIsSingleRootPartition(t *testing.T) {
	var s *Strategy

	n, err := s.Cardinality()
	if err != nil || n != 1 {
		t.Errorf("nil Cardinality() = %d, %v; want 1, nil", n, err)
	}
	key, err := s.Key(map[string]interface{}{"a": 1}, nil)
	if err != nil {
		t.Fatalf("nil Key: %v", err)
	}
	if key.Len() != 0 {
		t.Errorf("nil Key has %d values, want 0", key.Len())
	}
}

func TestStrategy_CardinalityUnknownPropagates(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().
		Hash("user_id", 4).
		Identity("region", 0).
		Build())

	got, err := s.Cardinality()
	if err != nil {
		t.Fatalf("Cardinality failed: %v", err)
	}
	if got != Unknown {
		t.Errorf("Cardinality = %d, want Unknown", got)
	}
}

func TestStrategy_CardinalityOverflow(t *testing.T) {
	const big = 1<<31 - 1
	s := mustStrategy(t)(NewBuilder().
		Hash("a", big).
		Hash("b", big).
		Hash("c", big).
		Build())

	_, err := s.Cardinality()
	if !errors.Is(err, ErrCardinalityOverflow) {
		t.Fatalf("expected ErrCardinalityOverflow, got %v", err)
	}
}

func TestStrategy_EmptyIsRejected(t *testing.T) {
	if _, err := New(); !errors.Is(err, ErrEmptyStrategy) {
		t.Errorf("New(): expected ErrEmptyStrategy, got %v", err)
	}
	if _, err := NewBuilder().Build(); !errors.Is(err, ErrEmptyStrategy) {
		t.Errorf("empty Build(): expected ErrEmptyStrategy, got %v", err)
	}
}

func TestStrategy_ZeroTransformRejected(t *testing.T) {
	if _, err := New(Transform{}); !errors.Is(err, ErrInvalidTransform) {
		t.Errorf("expected ErrInvalidTransform, got %v", err)
	}
}

func TestStrategy_Subpartition(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().
		Hash("user_id", 4).
		Identity("event_type", 3).
		IntRange("age", 18, 65).
		Build())

	same, err := s.Subpartition(0)
	if err != nil {
		t.Fatalf("Subpartition(0) failed: %v", err)
	}
	if same != s {
		t.Error("Subpartition(0) should return the strategy itself")
	}

	sub, err := s.Subpartition(1)
	if err != nil {
		t.Fatalf("Subpartition(1) failed: %v", err)
	}
	if got := fmt.Sprint(sub.FieldNames()); got != "[event_type age]" {
		t.Errorf("Subpartition(1) fields = %s", got)
	}

	leaf, err := s.Subpartition(3)
	if err != nil {
		t.Fatalf("Subpartition(3) failed: %v", err)
	}
	if leaf != nil {
		t.Errorf("Subpartition(len) = %v, want nil", leaf)
	}

	for _, bad := range []int{-1, 4} {
		if _, err := s.Subpartition(bad); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Subpartition(%d): expected ErrIndexOutOfRange, got %v", bad, err)
		}
	}
}

func TestStrategy_SubpartitionKeyAlignment(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().
		Identity("a", 2).
		Identity("b", 2).
		Identity("c", 2).
		Build())
	entity := map[string]interface{}{"a": "x", "b": "y", "c": "z"}

	full, err := s.Key(entity, nil)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	sub, _ := s.Subpartition(1)
	subKey, err := sub.Key(entity, nil)
	if err != nil {
		t.Fatalf("sub Key failed: %v", err)
	}
	if !subKey.Equal(full.Suffix(1)) {
		t.Errorf("sub key %v != full key suffix %v", subKey, full.Suffix(1))
	}
}

func TestStrategy_NewCopiesInput(t *testing.T) {
	a := mustTransform(t)(Identity("a", 1))
	b := mustTransform(t)(Identity("b", 1))
	in := []Transform{a, b}
	s := mustStrategy(t)(New(in...))
	in[0] = b

	if s.Transform(0).Name() != "a" {
		t.Error("mutating the input slice changed the sealed strategy")
	}

	out := s.Transforms()
	out[1] = a
	if s.Transform(1).Name() != "b" {
		t.Error("mutating Transforms() result changed the sealed strategy")
	}
}

func TestBuilder_CollectsErrors(t *testing.T) {
	_, err := NewBuilder().
		Hash("user_id", 0).
		IntRange("age", 65, 18).
		Identity("ok", 1).
		Build()
	if !errors.Is(err, ErrInvalidTransform) {
		t.Fatalf("expected ErrInvalidTransform, got %v", err)
	}
}

func TestBuilder_BuildsIndependentStrategies(t *testing.T) {
	b := NewBuilder().Identity("a", 1)
	first := mustStrategy(t)(b.Build())
	b.Identity("b", 1)
	second := mustStrategy(t)(b.Build())

	if first.Len() != 1 || second.Len() != 2 {
		t.Errorf("lengths = %d, %d; want 1, 2", first.Len(), second.Len())
	}
}

func TestStrategy_ConcurrentKeys(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().Hash("user_id", 8).Identity("event_type", 4).Build())

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				e := map[string]interface{}{"user_id": g*1000 + i, "event_type": "view"}
				k1, err := s.Key(e, nil)
				if err != nil {
					errs <- err
					return
				}
				k2, _ := s.Key(e, nil)
				if !k1.Equal(k2) {
					errs <- fmt.Errorf("non-deterministic key for %v", e)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestStrategy_String(t *testing.T) {
	s := mustStrategy(t)(NewBuilder().Hash("user_id", 4).Identity("event_type", 1).Build())
	want := "Strategy[hash(user_id, 4), identity(event_type, 1)]"
	if s.String() != want {
		t.Errorf("String() = %q, want %q", s.String(), want)
	}

	var nilStrategy *Strategy
	if nilStrategy.Len() != 0 {
		t.Error("nil strategy should have length 0")
	}
}

func TestKey_Equivalent(t *testing.T) {
	key := func(vs ...interface{}) Key { return Key{values: vs} }
	cases := []struct {
		a, b Key
		want bool
	}{
		{key(int64(1), "eu"), key(1, "eu"), true},
		{key(1.0), key(uint8(1)), true},
		{key(math.NaN()), key(math.NaN()), true},
		{key(nil), key(nil), true},
		{key("1"), key(1), false},
		{key(nil), key("__HIVE_DEFAULT_PARTITION__"), false},
		{key(1), key(1, 2), false},
	}
	for _, tc := range cases {
		if got := tc.a.Equivalent(tc.b); got != tc.want {
			t.Errorf("%v.Equivalent(%v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
