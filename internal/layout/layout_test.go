package layout

import (
	"testing"
	"time"

	"github.com/dpblh/kite/pkg/partition"
)

func testStrategy(t *testing.T) *partition.Strategy {
	t.Helper()
	s, err := partition.NewBuilder().
		Hash("user_id", 4).
		Identity("event_type", 8).
		Range("day", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return s
}

func TestPath(t *testing.T) {
	s := testStrategy(t)
	got, err := Path(s, partition.NewKey(3, "click", 1))
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if want := "user_id=3/event_type=click/day=1"; got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestPath_EscapesValues(t *testing.T) {
	s, err := partition.NewBuilder().Identity("a=b", 1).Identity("city", 1).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	got, err := Path(s, partition.NewKey("x/y", "São Paulo"))
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if want := "a%3Db=x%2Fy/city=S%C3%A3o%20Paulo"; got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}

	segs, err := Parse(got)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []Segment{{"a=b", "x/y"}, {"city", "São Paulo"}}
	if len(segs) != len(want) {
		t.Fatalf("Parse = %v, want %v", segs, want)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Errorf("segment %d = %v, want %v", i, segs[i], want[i])
		}
	}
}

func TestPath_Unpartitioned(t *testing.T) {
	got, err := Path(nil, partition.Key{})
	if err != nil || got != "" {
		t.Errorf("Path(nil) = %q, %v; want empty", got, err)
	}
}

func TestPath_KeyLengthMismatch(t *testing.T) {
	if _, err := Path(testStrategy(t), partition.NewKey(1)); err == nil {
		t.Error("expected error for short key")
	}
}

func TestLevels_FollowSubpartitions(t *testing.T) {
	s := testStrategy(t)
	key := partition.NewKey(0, "view", 0)

	levels, err := Levels(s, key)
	if err != nil {
		t.Fatalf("Levels failed: %v", err)
	}
	if len(levels) != s.Len() {
		t.Fatalf("got %d levels, want %d", len(levels), s.Len())
	}

	// The tail of the full layout is the layout of the sub-strategy.
	sub, _ := s.Subpartition(1)
	subLevels, err := Levels(sub, key.Suffix(1))
	if err != nil {
		t.Fatalf("sub Levels failed: %v", err)
	}
	if Join(levels[1:]) != Join(subLevels) {
		t.Errorf("sub layout %q != tail %q", Join(subLevels), Join(levels[1:]))
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		value interface{}
		want  string
	}{
		{nil, NullValue},
		{"click", "click"},
		{42, "42"},
		{2.5, "2.5"},
		{true, "true"},
		{[]byte{0xca, 0xfe}, "cafe"},
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "2024-03-01"},
		{time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "2024-03-01T12:30:00Z"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.value); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	segs, err := Parse("/user_id=3/event_type=click/")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(segs) != 2 || segs[0] != (Segment{"user_id", "3"}) || segs[1] != (Segment{"event_type", "click"}) {
		t.Errorf("Parse = %v", segs)
	}

	if segs, err := Parse(""); err != nil || segs != nil {
		t.Errorf("Parse(\"\") = %v, %v", segs, err)
	}

	for _, bad := range []string{"user_id", "=3", "a=%zz"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q): expected error", bad)
		}
	}
}

func TestHasPrefix(t *testing.T) {
	segs := []Segment{{"user_id", "3"}, {"event_type", "click"}}

	tests := []struct {
		prefix []Segment
		want   bool
	}{
		{nil, true},
		{[]Segment{{"user_id", "3"}}, true},
		{segs, true},
		{[]Segment{{"user_id", "2"}}, false},
		{[]Segment{{"event_type", "click"}}, false},
		{append(append([]Segment{}, segs...), Segment{"day", "0"}), false},
	}
	for _, tt := range tests {
		if got := HasPrefix(segs, tt.prefix); got != tt.want {
			t.Errorf("HasPrefix(%v) = %v, want %v", tt.prefix, got, tt.want)
		}
	}
}
