package resolver

import (
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxDepth bounds the recursive descent into nested record values.
const DefaultMaxDepth = 3

// Record is an untyped key/value row returned by an external CDR source.
// Keys vary in case, accents and naming convention across providers, so a
// Record must always be read through Resolve rather than indexed directly.
type Record map[string]interface{}

var keyFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldKey reduces a key to a comparison form: diacritics stripped,
// non-alphanumerics removed, lower-cased.
func FoldKey(key string) string {
	folded, _, err := transform.String(keyFolder, key)
	if err != nil {
		folded = key
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Resolve locates a value in a heterogeneously keyed record. Candidates are
// tried as exact keys first, then against a folded index of the record's own
// keys, then recursively inside nested objects and arrays up to maxDepth.
// Empty strings and nils count as "not found". Returns nil when unresolved.
func Resolve(record Record, candidates []string, maxDepth int) interface{} {
	if len(record) == 0 || len(candidates) == 0 {
		return nil
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	visited := make(map[uintptr]struct{})
	return resolveValue(reflect.ValueOf(record), candidates, maxDepth, visited)
}

// ResolveString resolves a candidate list and renders the value as a trimmed
// string. Integral floats print without a fractional part so numeric columns
// decoded from JSON keep their original spelling.
func ResolveString(record Record, candidates []string, maxDepth int) string {
	return Stringify(Resolve(record, candidates, maxDepth))
}

// Stringify renders a resolved raw value as a trimmed string.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return strings.TrimSpace(stringifyReflect(reflect.ValueOf(value)))
	}
}

func stringifyReflect(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	default:
		return ""
	}
}

func resolveValue(v reflect.Value, candidates []string, depth int, visited map[uintptr]struct{}) interface{} {
	v = unwrap(v)
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil
		}
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if _, seen := visited[ptr]; seen {
			return nil
		}
		visited[ptr] = struct{}{}
		return resolveMap(v, candidates, depth, visited)
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice {
			if v.IsNil() {
				return nil
			}
			ptr := v.Pointer()
			if _, seen := visited[ptr]; seen {
				return nil
			}
			visited[ptr] = struct{}{}
		}
		if depth <= 0 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if found := resolveValue(v.Index(i), candidates, depth-1, visited); !isEmpty(found) {
				return found
			}
		}
		return nil
	default:
		return nil
	}
}

func resolveMap(m reflect.Value, candidates []string, depth int, visited map[uintptr]struct{}) interface{} {
	// Exact keys first.
	for _, candidate := range candidates {
		val := m.MapIndex(reflect.ValueOf(candidate))
		if val.IsValid() {
			if raw := rawValue(val); !isEmpty(raw) {
				return raw
			}
		}
	}

	// Folded index of the record's own keys.
	folded := make(map[string]reflect.Value, m.Len())
	iter := m.MapRange()
	for iter.Next() {
		key := FoldKey(iter.Key().String())
		if key == "" {
			continue
		}
		if _, taken := folded[key]; !taken {
			folded[key] = iter.Value()
		}
	}
	for _, candidate := range candidates {
		if val, ok := folded[FoldKey(candidate)]; ok {
			if raw := rawValue(val); !isEmpty(raw) {
				return raw
			}
		}
	}

	// Recurse into nested structures.
	if depth <= 0 {
		return nil
	}
	iter = m.MapRange()
	for iter.Next() {
		child := unwrap(iter.Value())
		if !child.IsValid() {
			continue
		}
		// Only objects and arrays are descended into; scalars and
		// timestamps are leaves.
		switch child.Kind() {
		case reflect.Map, reflect.Slice, reflect.Array:
			if found := resolveValue(child, candidates, depth-1, visited); !isEmpty(found) {
				return found
			}
		}
	}
	return nil
}

func unwrap(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func rawValue(v reflect.Value) interface{} {
	v = unwrap(v)
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

func isEmpty(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
