package template

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/aymerick/raymond"
)

func init() {
	raymond.RegisterHelpers(map[string]any{
		"json":      jsonHelper,
		"path":      pathHelper,
		"eq":        eqHelper,
		"not":       notHelper,
		"and":       andHelper,
		"or":        orHelper,
		"gt":        gtHelper,
		"lt":        ltHelper,
		"lowercase": lowercaseHelper,
		"uppercase": uppercaseHelper,
		"trim":      trimHelper,
	})
}

func jsonHelper(value any) string {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return ""
	}

	return string(data)
}

func pathHelper(path string, data any) any {
	value, _ := Lookup(data, path)

	return value
}

func eqHelper(a, b any) bool {
	return Equal(a, b)
}

func notHelper(value any) bool {
	return !raymond.IsTrue(value)
}

func andHelper(a, b any) bool {
	return raymond.IsTrue(a) && raymond.IsTrue(b)
}

func orHelper(a, b any) bool {
	return raymond.IsTrue(a) || raymond.IsTrue(b)
}

func gtHelper(a, b any) bool {
	x, okA := toNumber(a)
	y, okB := toNumber(b)

	return okA && okB && x > y
}

func ltHelper(a, b any) bool {
	x, okA := toNumber(a)
	y, okB := toNumber(b)

	return okA && okB && x < y
}

func lowercaseHelper(value any) any {
	if s, ok := value.(string); ok {
		return strings.ToLower(s)
	}

	return value
}

func uppercaseHelper(value any) any {
	if s, ok := value.(string); ok {
		return strings.ToUpper(s)
	}

	return value
}

func trimHelper(value any) any {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}

	return value
}

// Equal is strict equality: values must share a type, except that numbers of
// any kind compare by value.
func Equal(a, b any) bool {
	if isNumeric(a) && isNumeric(b) {
		x, _ := toNumber(a)
		y, _ := toNumber(b)

		return x == y
	}

	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}

	return reflect.DeepEqual(a, b)
}

func isNumeric(value any) bool {
	if value == nil {
		return false
	}

	switch reflect.TypeOf(value).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return f, err == nil
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	}

	if !isNumeric(value) {
		return 0, false
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	default:
		return float64(rv.Int()), true
	}
}
