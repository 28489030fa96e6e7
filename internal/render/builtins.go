package render

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"math"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/flosch/pongo2/v6"
)

type filterFunc func(v any, args []any) (any, error)

type testFunc func(v any, args []any) (bool, error)

// filterArgs carries a filter's call arguments through pongo2's single
// filter parameter.
type filterArgs []any

var jinjaFilters = map[string]filterFunc{
	"abs":        filterAbs,
	"capitalize": stringFilter(capitalize),
	"count":      filterLength,
	"d":          filterDefault,
	"default":    filterDefault,
	"e":          stringFilter(html.EscapeString),
	"escape":     stringFilter(html.EscapeString),
	"first":      filterFirst,
	"float":      filterFloat,
	"int":        filterInt,
	"items":      func(v any, _ []any) (any, error) { return mappingItems(v) },
	"join":       filterJoin,
	"last":       filterLast,
	"length":     filterLength,
	"list":       func(v any, _ []any) (any, error) { return sequence(v) },
	"lower":      stringFilter(strings.ToLower),
	"max":        extremum(1),
	"min":        extremum(-1),
	"replace":    filterReplace,
	"reverse":    filterReverse,
	"round":      filterRound,
	"safe":       func(v any, _ []any) (any, error) { return v, nil },
	"sort":       filterSort,
	"string":     func(v any, _ []any) (any, error) { return formatValue(v), nil },
	"sum":        filterSum,
	"title":      stringFilter(titleCase),
	"tojson":     filterToJSON,
	"trim":       filterTrim,
	"unique":     filterUnique,
	"upper":      stringFilter(strings.ToUpper),
	"wordcount":  func(v any, _ []any) (any, error) { return len(strings.Fields(formatValue(v))), nil },
}

var jinjaTests = map[string]testFunc{
	"defined":   func(v any, _ []any) (bool, error) { return v != nil, nil },
	"undefined": func(v any, _ []any) (bool, error) { return v == nil, nil },
	"none":      func(v any, _ []any) (bool, error) { return v == nil, nil },
	"string":    kindTest(reflect.String),
	"boolean":   kindTest(reflect.Bool),
	"mapping":   kindTest(reflect.Map),
	"sequence":  kindTest(reflect.Slice, reflect.Array, reflect.String),
	"iterable":  kindTest(reflect.Slice, reflect.Array, reflect.String, reflect.Map),
	"number": func(v any, _ []any) (bool, error) {
		_, ok := toFloat(v)
		return ok && !isKind(v, reflect.Bool, reflect.String), nil
	},
	"integer": func(v any, _ []any) (bool, error) { return isInteger(v), nil },
	"float":   kindTest(reflect.Float32, reflect.Float64),
	"true":    func(v any, _ []any) (bool, error) { return v == true, nil },
	"false":   func(v any, _ []any) (bool, error) { return v == false, nil },
	"even":    func(v any, _ []any) (bool, error) { n, ok := integerValue(v); return ok && n%2 == 0, nil },
	"odd":     func(v any, _ []any) (bool, error) { n, ok := integerValue(v); return ok && n%2 != 0, nil },
	"divisibleby": func(v any, args []any) (bool, error) {
		d, ok := integerValue(argAt(args, 0))
		if !ok || d == 0 {
			return false, errors.New("divisibleby needs a non-zero integer")
		}
		n, ok := integerValue(v)
		return ok && n%d == 0, nil
	},
	"eq":      func(v any, args []any) (bool, error) { return equalValues(v, argAt(args, 0)), nil },
	"equalto": func(v any, args []any) (bool, error) { return equalValues(v, argAt(args, 0)), nil },
	"ne":      func(v any, args []any) (bool, error) { return !equalValues(v, argAt(args, 0)), nil },
	"in": func(v any, args []any) (bool, error) {
		items, err := sequence(argAt(args, 0))
		if err != nil {
			return false, err
		}
		return slices.ContainsFunc(items, func(item any) bool { return equalValues(v, item) }), nil
	},
	"lower": func(v any, _ []any) (bool, error) {
		s, ok := v.(string)
		return ok && s == strings.ToLower(s), nil
	},
	"upper": func(v any, _ []any) (bool, error) {
		s, ok := v.(string)
		return ok && s == strings.ToUpper(s), nil
	},
}

// helpers are the functions the translated templates call at runtime.
var helpers = map[string]any{
	helperPrefix + "fmt": func(v *pongo2.Value) string { return formatValue(native(v)) },
	helperPrefix + "cat": func(vals ...*pongo2.Value) string {
		var b strings.Builder
		for _, v := range vals {
			b.WriteString(formatValue(native(v)))
		}
		return b.String()
	},
	helperPrefix + "cond": func(c, a, b *pongo2.Value) *pongo2.Value {
		if c.IsTrue() {
			return a
		}
		return b
	},
	helperPrefix + "id":    func(v *pongo2.Value) *pongo2.Value { return v },
	helperPrefix + "list":  func(vals ...*pongo2.Value) []any { return natives(vals) },
	helperPrefix + "args":  func(vals ...*pongo2.Value) filterArgs { return filterArgs(natives(vals)) },
	helperPrefix + "lines": func(vals ...*pongo2.Value) string { return strings.Join(toStrings(natives(vals)), "\n") },
	helperPrefix + "dict": func(vals ...*pongo2.Value) (map[string]any, error) {
		out := make(map[string]any, len(vals)/2)
		for i := 0; i+1 < len(vals); i += 2 {
			key, ok := native(vals[i]).(string)
			if !ok {
				return nil, fmt.Errorf("mapping keys must be strings, got %T", native(vals[i]))
			}
			out[key] = native(vals[i+1])
		}
		return out, nil
	},
	helperPrefix + "iter": func(v *pongo2.Value) (*pongo2.Value, error) {
		if !isKind(native(v), reflect.Map) {
			return v, nil
		}
		keys, err := sequence(native(v))
		if err != nil {
			return nil, err
		}
		return pongo2.AsValue(keys), nil
	},
	helperPrefix + "is":    testHelper(false),
	helperPrefix + "isnot": testHelper(true),
	helperPrefix + "items": func(v *pongo2.Value) ([]any, error) { return mappingItems(native(v)) },
	helperPrefix + "keys": func(v *pongo2.Value) ([]any, error) {
		m, err := mapping(native(v))
		if err != nil {
			return nil, err
		}
		keys := make([]any, len(m))
		for i, k := range sortedKeys(m) {
			keys[i] = k
		}
		return keys, nil
	},
	helperPrefix + "values": func(v *pongo2.Value) ([]any, error) {
		m, err := mapping(native(v))
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, len(m))
		for _, k := range sortedKeys(m) {
			values = append(values, m[k])
		}
		return values, nil
	},
}

func registerFilters() {
	for name, fn := range jinjaFilters {
		err := pongo2.RegisterFilter(helperPrefix+name, func(in, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
			args, _ := native(param).(filterArgs)
			out, err := fn(native(in), args)
			if err != nil {
				return nil, &pongo2.Error{Sender: "filter:" + name, OrigError: err}
			}
			return pongo2.AsValue(out), nil
		})
		if err != nil {
			panic(err)
		}
	}
}

func testHelper(negate bool) func(name, v *pongo2.Value, args ...*pongo2.Value) (bool, error) {
	return func(name, v *pongo2.Value, args ...*pongo2.Value) (bool, error) {
		test, ok := jinjaTests[name.String()]
		if !ok {
			return false, fmt.Errorf("unknown test %q", name.String())
		}
		result, err := test(native(v), natives(args))
		if err != nil {
			return false, err
		}
		return result != negate, nil
	}
}

// native unwraps a pongo2 value into the Go value it carries.
func native(v *pongo2.Value) any {
	if v == nil {
		return nil
	}
	x := v.Interface()
	if inner, ok := x.(*pongo2.Value); ok {
		return native(inner)
	}
	return x
}

func natives(vals []*pongo2.Value) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = native(v)
	}
	return out
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// formatValue prints v the way Jinja prints an expression: strings raw,
// booleans lowercase, floats with at least one fractional digit, and
// containers in their literal form. Undefined and null print nothing.
func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	var b strings.Builder
	writeValue(&b, v, false)
	return b.String()
}

func writeValue(b *strings.Builder, v any, nested bool) {
	if pv, ok := v.(*pongo2.Value); ok {
		v = native(pv)
	}
	switch val := v.(type) {
	case nil:
		if nested {
			b.WriteString("none")
		}
		return
	case json.Number:
		b.WriteString(val.String())
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		if nested {
			b.WriteString(strconv.Quote(rv.String()))
		} else {
			b.WriteString(rv.String())
		}
	case reflect.Bool:
		b.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		b.WriteString(formatFloat(rv.Float()))
	case reflect.Slice, reflect.Array:
		b.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, rv.Index(i).Interface(), true)
		}
		b.WriteByte(']')
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface()) })
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, k.Interface(), true)
			b.WriteString(": ")
			writeValue(b, rv.MapIndex(k).Interface(), true)
		}
		b.WriteByte('}')
	case reflect.Pointer:
		if rv.IsNil() {
			writeValue(b, nil, nested)
			return
		}
		writeValue(b, rv.Elem().Interface(), nested)
	default:
		fmt.Fprint(b, v)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func toStrings(items []any) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = formatValue(item)
	}
	return out
}

func isKind(v any, kinds ...reflect.Kind) bool {
	if v == nil {
		return false
	}
	return slices.Contains(kinds, reflect.ValueOf(v).Kind())
}

func kindTest(kinds ...reflect.Kind) testFunc {
	return func(v any, _ []any) (bool, error) { return isKind(v, kinds...), nil }
}

func isInteger(v any) bool {
	return isKind(v, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64)
}

// integerValue returns v as an int64 when it holds an integer.
func integerValue(v any) (int64, bool) {
	if !isInteger(v) {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	if rv.CanInt() {
		return rv.Int(), true
	}
	return int64(rv.Uint()), true
}

// toFloat converts numbers and booleans.
func toFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int()), true
	case rv.CanUint():
		return float64(rv.Uint()), true
	case rv.CanFloat():
		return rv.Float(), true
	case rv.Kind() == reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func equalValues(a, b any) bool {
	if isKind(a, reflect.Bool) || isKind(b, reflect.Bool) {
		return reflect.DeepEqual(a, b)
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) (int, error) {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), nil
		}
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return cmp.Compare(fa, fb), nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

// sequence lists the items a for loop would visit.
func sequence(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		out := make([]any, 0, utf8.RuneCountInString(s))
		for _, r := range s {
			out = append(out, string(r))
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	case reflect.Map:
		m, err := mapping(v)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(m))
		for _, k := range sortedKeys(m) {
			out = append(out, k)
		}
		return out, nil
	}
	return nil, fmt.Errorf("value of type %T is not iterable", v)
}

func mapping(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("value of type %T is not a mapping", v)
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mappingItems(v any) ([]any, error) {
	m, err := mapping(v)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(m))
	for _, k := range sortedKeys(m) {
		items = append(items, []any{k, m[k]})
	}
	return items, nil
}

func stringFilter(fn func(string) string) filterFunc {
	return func(v any, _ []any) (any, error) { return fn(formatValue(v)), nil }
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func titleCase(s string) string {
	var b strings.Builder
	start := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			start = false
			continue
		}
		b.WriteRune(r)
		start = true
	}
	return b.String()
}

func filterTrim(v any, args []any) (any, error) {
	s := formatValue(v)
	if chars := argAt(args, 0); chars != nil {
		return strings.Trim(s, formatValue(chars)), nil
	}
	return strings.TrimSpace(s), nil
}

func filterLength(v any, _ []any) (any, error) {
	if v == nil {
		return 0, nil
	}
	if s, ok := v.(string); ok {
		return utf8.RuneCountInString(s), nil
	}
	if isKind(v, reflect.Slice, reflect.Array, reflect.Map) {
		return reflect.ValueOf(v).Len(), nil
	}
	return nil, fmt.Errorf("value of type %T has no length", v)
}

// filterDefault replaces undefined values, and falsy ones too when the
// second argument is true.
func filterDefault(v any, args []any) (any, error) {
	fallback := argAt(args, 0)
	if fallback == nil {
		fallback = ""
	}
	if v == nil {
		return fallback, nil
	}
	if pongo2.AsValue(argAt(args, 1)).IsTrue() && !pongo2.AsValue(v).IsTrue() {
		return fallback, nil
	}
	return v, nil
}

func filterJoin(v any, args []any) (any, error) {
	items, err := sequence(v)
	if err != nil {
		return nil, err
	}
	sep := ""
	if s := argAt(args, 0); s != nil {
		sep = formatValue(s)
	}
	return strings.Join(toStrings(items), sep), nil
}

func filterFirst(v any, _ []any) (any, error) {
	items, err := sequence(v)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func filterLast(v any, _ []any) (any, error) {
	items, err := sequence(v)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[len(items)-1], nil
}

func filterInt(v any, args []any) (any, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), nil
		}
	} else if f, ok := toFloat(v); ok {
		if n, ok := integerValue(v); ok {
			return n, nil
		}
		return int64(f), nil
	}
	if fallback := argAt(args, 0); fallback != nil {
		return fallback, nil
	}
	return int64(0), nil
}

func filterFloat(v any, args []any) (any, error) {
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, nil
		}
	} else if f, ok := toFloat(v); ok {
		return f, nil
	}
	if fallback := argAt(args, 0); fallback != nil {
		return fallback, nil
	}
	return 0.0, nil
}

func filterToJSON(v any, args []any) (any, error) {
	var (
		out []byte
		err error
	)
	if indent, ok := integerValue(argAt(args, 0)); ok && indent > 0 {
		out, err = json.MarshalIndent(v, "", strings.Repeat(" ", int(indent)))
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

func filterReplace(v any, args []any) (any, error) {
	if len(args) < 2 {
		return nil, errors.New("replace needs the old and new strings")
	}
	count := -1
	if n, ok := integerValue(argAt(args, 2)); ok {
		count = int(n)
	}
	return strings.Replace(formatValue(v), formatValue(args[0]), formatValue(args[1]), count), nil
}

func filterRound(v any, args []any) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("round needs a number, got %T", v)
	}
	precision, _ := integerValue(argAt(args, 0))
	scale := math.Pow(10, float64(precision))

	method := "common"
	if m := argAt(args, 1); m != nil {
		method = formatValue(m)
	}
	switch method {
	case "common":
		return math.Round(f*scale) / scale, nil
	case "ceil":
		return math.Ceil(f*scale) / scale, nil
	case "floor":
		return math.Floor(f*scale) / scale, nil
	}
	return nil, fmt.Errorf("round method must be common, ceil or floor, got %q", method)
}

func filterAbs(v any, _ []any) (any, error) {
	if n, ok := integerValue(v); ok {
		if n < 0 {
			return -n, nil
		}
		return n, nil
	}
	if f, ok := toFloat(v); ok && !isKind(v, reflect.Bool) {
		return math.Abs(f), nil
	}
	return nil, fmt.Errorf("abs needs a number, got %T", v)
}

func filterReverse(v any, _ []any) (any, error) {
	if s, ok := v.(string); ok {
		runes := []rune(s)
		slices.Reverse(runes)
		return string(runes), nil
	}
	items, err := sequence(v)
	if err != nil {
		return nil, err
	}
	slices.Reverse(items)
	return items, nil
}

func filterSort(v any, _ []any) (any, error) {
	items, err := sequence(v)
	if err != nil {
		return nil, err
	}
	var cmpErr error
	slices.SortStableFunc(items, func(a, b any) int {
		c, err := compareValues(a, b)
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		return c
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	return items, nil
}

func filterUnique(v any, _ []any) (any, error) {
	items, err := sequence(v)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(items))
	out := make([]any, 0, len(items))
	for _, item := range items {
		key := fmt.Sprintf("%T:%s", item, formatValue(item))
		if !seen[key] {
			seen[key] = true
			out = append(out, item)
		}
	}
	return out, nil
}

func filterSum(v any, _ []any) (any, error) {
	items, err := sequence(v)
	if err != nil {
		return nil, err
	}
	var (
		ints   int64
		floats float64
		float  bool
	)
	for _, item := range items {
		if n, ok := integerValue(item); ok {
			ints += n
			continue
		}
		f, ok := toFloat(item)
		if !ok || isKind(item, reflect.Bool) {
			return nil, fmt.Errorf("sum needs numbers, got %T", item)
		}
		floats += f
		float = true
	}
	if float {
		return floats + float64(ints), nil
	}
	return ints, nil
}

// extremum returns min (sign -1) or max (sign 1).
func extremum(sign int) filterFunc {
	return func(v any, _ []any) (any, error) {
		items, err := sequence(v)
		if err != nil || len(items) == 0 {
			return nil, err
		}
		best := items[0]
		for _, item := range items[1:] {
			c, err := compareValues(item, best)
			if err != nil {
				return nil, err
			}
			if c*sign > 0 {
				best = item
			}
		}
		return best, nil
	}
}
