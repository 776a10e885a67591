package template

import (
	"strconv"
	"strings"

	"github.com/oliveagle/jsonpath"
)

// Lookup resolves a dotted path such as "user.address.city" or "items.0.id"
// inside data. It never fails: a missing segment yields (nil, false). Paths
// starting with "$" are passed to jsonpath unchanged.
func Lookup(data any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return data, data != nil
	}

	if data == nil {
		return nil, false
	}

	value, err := jsonpath.JsonPathLookup(data, toJSONPath(path))
	if err != nil {
		return nil, false
	}

	return value, true
}

func toJSONPath(path string) string {
	if strings.HasPrefix(path, "$") {
		return path
	}

	var b strings.Builder

	b.WriteString("$")

	for _, segment := range strings.Split(path, ".") {
		if _, err := strconv.Atoi(segment); err == nil {
			b.WriteString("[" + segment + "]")

			continue
		}

		b.WriteString("." + segment)
	}

	return b.String()
}
