package docstore

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// Clone deep-copies a document so callers can never alias store state.
func Clone(d Doc) Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Doc:
		return Clone(t)
	case map[string]any:
		return map[string]any(Clone(Doc(t)))
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}

// Matches reports whether d satisfies every filter.
func Matches(d Doc, filters []Filter) bool {
	for _, f := range filters {
		if !valuesEqual(d[f.Field], f.Value) {
			return false
		}
	}
	return true
}

// SortDocs orders docs in place by order, breaking ties by ID.
func SortDocs(docs []Doc, order Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		if order.Field != "" {
			c := compareValues(docs[i][order.Field], docs[j][order.Field])
			if c != 0 {
				if order.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return docs[i].ID() < docs[j].ID()
	})
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders nil first, then by the natural order of the type.
// Mixed types fall back to comparing their type names.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	switch ta := a.(type) {
	case time.Time:
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	case string:
		if sb, ok := b.(string); ok {
			return strings.Compare(ta, sb)
		}
	case bool:
		if bb, ok := b.(bool); ok {
			switch {
			case ta == bb:
				return 0
			case !ta:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(reflect.TypeOf(a).String(), reflect.TypeOf(b).String())
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
