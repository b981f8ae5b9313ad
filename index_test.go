package packdb

import (
	"testing"
	"time"
)

func TestKeysEqual(t *testing.T) {
	now := time.Now()
	cases := []struct {
		a, b any
		want bool
	}{
		{1, int8(1), true},
		{int64(300000), int32(300000), true},
		{uint16(7), 7, true},
		{float64(2), 2, true},
		{2.5, 2.5, true},
		{2.5, 2, false},
		{"a", "a", true},
		{"1", 1, false},
		{true, true, true},
		{true, 1, false},
		{nil, nil, true},
		{nil, 0, false},
		{now, now.UTC(), true},
		{now, now.Add(time.Second), false},
		{[]int{1}, []int{1}, true},
		{[]int{1}, []int{2}, false},
	}
	for i, c := range cases {
		if got := KeysEqual(c.a, c.b); got != c.want {
			t.Errorf("case %d: KeysEqual(%T %v, %T %v) = %v, want %v", i, c.a, c.a, c.b, c.b, got, c.want)
		}
	}
}

func TestIndexFind(t *testing.T) {
	idx := Index{Entries: []IndexEntry{
		{Value: "red", IDs: []int{1}},
		{Value: int8(3), IDs: []int{2, 4}},
	}}
	cases := []struct {
		key  any
		want int
	}{
		{"red", 0},
		{3, 1},
		{uint64(3), 1},
		{"blue", -1},
	}
	for _, c := range cases {
		if got := idx.Find(c.key); got != c.want {
			t.Errorf("Find(%v) = %d, want %d", c.key, got, c.want)
		}
	}
}
