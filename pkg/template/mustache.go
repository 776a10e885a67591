package template

import (
	"regexp"
	"strings"
)

var (
	bareVariable = regexp.MustCompile(`^\s*\{\{\s*([A-Za-z_@][\w@\-]*(?:\.[\w@\-]+)*)\s*\}\}\s*$`)
	jsonCall     = regexp.MustCompile(`(?:\{\{\{?~?|\()\s*json\s`)
)

// UsesJSON reports whether tpl calls the json helper, directly or as a
// subexpression.
func UsesJSON(tpl string) bool {
	return jsonCall.MatchString(tpl)
}

// IsBareVariable reports whether tpl is exactly one variable reference such as
// {{state.user}}.
func IsBareVariable(tpl string) bool {
	match := bareVariable.FindStringSubmatch(tpl)

	return match != nil && match[1] != "else"
}

// WrapBareVariable turns {{x}} into {{json x}} so object values keep their
// structure when rendered. Other templates are returned unchanged.
func WrapBareVariable(tpl string) string {
	match := bareVariable.FindStringSubmatch(tpl)
	if match == nil || match[1] == "else" {
		return tpl
	}

	return "{{json " + match[1] + "}}"
}

// unescapeMustaches rewrites simple {{expr}} statements into {{{expr}}} so that
// rendered values are not HTML escaped. Blocks, partials, comments and
// whitespace-controlled statements are kept.
func unescapeMustaches(src string) string {
	var out strings.Builder

	out.Grow(len(src) + 16)

	rest := src

	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)

			return out.String()
		}

		out.WriteString(rest[:start])
		rest = rest[start:]

		if strings.HasPrefix(rest, "{{{") {
			end := strings.Index(rest, "}}}")
			if end < 0 {
				out.WriteString(rest)

				return out.String()
			}

			out.WriteString(rest[:end+3])
			rest = rest[end+3:]

			continue
		}

		closing := "}}"
		if strings.HasPrefix(rest, "{{!--") {
			closing = "--}}"
		}

		end := strings.Index(rest[2:], closing)
		if end < 0 {
			out.WriteString(rest)

			return out.String()
		}

		end += 2
		inner := rest[2:end]
		statement := rest[:end+len(closing)]
		rest = rest[end+len(closing):]

		if keepEscaped(inner) {
			out.WriteString(statement)

			continue
		}

		out.WriteString("{{{")
		out.WriteString(inner)
		out.WriteString("}}}")
	}
}

func keepEscaped(inner string) bool {
	trimmed := strings.TrimSpace(inner)
	if trimmed == "" || strings.HasPrefix(inner, "~") || strings.HasSuffix(inner, "~") {
		return true
	}

	switch trimmed[0] {
	case '#', '/', '!', '^', '>', '&', '*':
		return true
	}

	return trimmed == "else" || strings.HasPrefix(trimmed, "else ")
}
