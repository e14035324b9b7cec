package docstore

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Document is a stored document and its id.
type Document struct {
	ID   string
	Data map[string]any
}

// Has reports whether the document carries field with a non-nil value.
func (d Document) Has(field string) bool {
	v, ok := d.Data[field]
	return ok && v != nil
}

// String returns field as a string, or "" when absent or not a string.
func (d Document) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

// Int returns field as an int. Numeric strings are parsed; anything else is 0.
func (d Document) Int(field string) int {
	switch v := d.Data[field].(type) {
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		f, ok := toFloat(v)
		if !ok || math.IsNaN(f) {
			return 0
		}
		return int(f)
	}
}

// Float returns field as a float64 pointer, nil when absent or not numeric.
func (d Document) Float(field string) *float64 {
	f, ok := toFloat(d.Data[field])
	if !ok {
		return nil
	}
	return &f
}

// Time returns field as a time, nil when absent.
func (d Document) Time(field string) *time.Time {
	switch v := d.Data[field].(type) {
	case time.Time:
		return &v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// valuesEqual compares two field values the way a document database does:
// numbers by value regardless of width, times by instant.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	switch av := a.(type) {
	case string, bool, nil:
		return a == b
	default:
		return fmt.Sprint(av) == fmt.Sprint(b)
	}
}

// compareValues orders field values: nil lowest, then booleans, numbers,
// strings and times. Mixed types order by that rank.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case 3:
		as, bs := a.(string), b.(string)
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	case 4:
		return a.(time.Time).Compare(b.(time.Time))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	case time.Time:
		return 4
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 5
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	}
	return v
}
