package observable

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// IsEqual reports whether a and b are structurally equal. Arrays compare
// index-wise and are length-sensitive, time.Time values compare by
// millisecond instant, *regexp.Regexp values by source, objects by their
// enumerable keys. All Go numeric kinds compare as float64 and NaN equals
// NaN. Handles compare by content, so a handle equals a plain map or slice
// holding the same data. Cyclic values are safe.
func IsEqual(a, b any) bool {
	c := comparer{seen: make(map[[2]uintptr]bool)}
	return c.equal(a, b)
}

type comparer struct {
	seen map[[2]uintptr]bool
}

func (c comparer) equal(a, b any) bool {
	if a == nil || b == nil {
		return isNil(a) && isNil(b)
	}

	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return false
		}
		return fa == fb || (math.IsNaN(fa) && math.IsNaN(fb))
	}

	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	case time.Time:
		vb, ok := b.(time.Time)
		return ok && va.UnixMilli() == vb.UnixMilli()
	case *regexp.Regexp:
		vb, ok := b.(*regexp.Regexp)
		if !ok || va == nil || vb == nil {
			return ok && va == vb
		}
		return va.String() == vb.String()
	}

	if pa, ok := a.(Node); ok {
		if pb, ok := b.(Node); ok && pa == pb {
			return true
		}
	}

	if sa, ok := sequence(a); ok {
		sb, ok := sequence(b)
		if !ok || len(sa) != len(sb) {
			return false
		}
		if c.visited(a, b) {
			return true
		}
		for i := range sa {
			if !c.equal(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}

	if ka, ma, ok := entries(a); ok {
		kb, mb, ok := entries(b)
		if !ok || len(ka) != len(kb) {
			return false
		}
		if c.visited(a, b) {
			return true
		}
		for _, k := range ka {
			vb, exists := mb[k]
			if !exists || !c.equal(ma[k], vb) {
				return false
			}
		}
		return true
	}

	if _, ok := sequence(b); ok {
		return false
	}
	if _, _, ok := entries(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// visited records the pair and reports whether it was already being compared.
func (c comparer) visited(a, b any) bool {
	key := [2]uintptr{identity(a), identity(b)}
	if key[0] == 0 || key[1] == 0 {
		return false
	}
	if c.seen[key] {
		return true
	}
	c.seen[key] = true
	return false
}

func identity(v any) uintptr {
	switch c := v.(type) {
	case *Object, *Array:
		return reflect.ValueOf(c).Pointer()
	case map[string]any:
		return reflect.ValueOf(c).Pointer()
	case []any:
		if len(c) == 0 {
			return 0
		}
		return reflect.ValueOf(c).Pointer()
	}
	return 0
}

func sequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, s != nil
	case *Array:
		if s == nil {
			return nil, false
		}
		return s.Values(), true
	}
	return nil, false
}

func entries(v any) ([]string, map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		if m == nil {
			return nil, nil, false
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		return keys, m, true
	case *Object:
		if m == nil {
			return nil, nil, false
		}
		return m.Keys(), m.ToJSON(), true
	}
	return nil, nil, false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// strictEqual is identity for handles and == for comparable values; NaN is
// never strictly equal to itself.
func strictEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// defaultCompare orders values by their string form, nils last.
func defaultCompare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return strings.Compare(stringForm(a, 0), stringForm(b, 0))
}

func stringForm(v any, depth int) string {
	if f, ok := toFloat(v); ok {
		switch {
		case math.IsNaN(f):
			return "NaN"
		case math.IsInf(f, 1):
			return "Infinity"
		case math.IsInf(f, -1):
			return "-Infinity"
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case *Object:
		return "[object Object]"
	case *Array:
		if depth > 8 {
			return ""
		}
		parts := make([]string, s.Len())
		for i, item := range s.Values() {
			parts[i] = stringForm(item, depth+1)
		}
		return strings.Join(parts, ",")
	case time.Time:
		return s.String()
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}
