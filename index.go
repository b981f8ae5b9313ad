package packdb

import (
	"math"
	"reflect"
	"time"
)

// IndexEntry maps one indexed value to the ids of the records currently holding it.
type IndexEntry struct {
	Value any   `msgpack:"value" json:"value"`
	IDs   []int `msgpack:"ids" json:"ids"`
}

// Index is the content of one index file.
type Index struct {
	Entries []IndexEntry `msgpack:"entries" json:"entries"`
}

// Find returns the position of the first entry whose value equals key, or -1.
func (idx *Index) Find(key any) int {
	for i := range idx.Entries {
		if KeysEqual(idx.Entries[i].Value, key) {
			return i
		}
	}
	return -1
}

// KeysEqual compares index values. Numbers compare by value regardless of their Go type
// since decoded values come back in the narrowest width the codec picked.
func KeysEqual(a, b any) bool {
	na, aok := normalizeKey(a)
	nb, bok := normalizeKey(b)
	if aok && bok {
		if ta, ok := na.(time.Time); ok {
			tb, ok := nb.(time.Time)
			return ok && ta.Equal(tb)
		}
		return na == nb
	}
	return reflect.DeepEqual(a, b)
}

// normalizeKey maps scalars onto a small set of comparable representations.
func normalizeKey(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u <= math.MaxInt64 {
			return int64(u), true
		}
		return u, true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), true
		}
		return f, true
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	}
	return nil, false
}
