// Package template renders Handlebars templates against execution state and the
// recorded input and output of previous nodes.
package template

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aymerick/raymond"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/patrickmn/go-cache"
)

var compiled = cache.New(10*time.Minute, 20*time.Minute)

// Context is the data a template is rendered against.
type Context struct {
	State map[string]any
	Nodes map[string]models.NodeIO
	Extra map[string]any
}

// Map flattens the context into the lookup root used by templates. Extra keys
// override state and nodes.
func (c Context) Map() map[string]any {
	nodes := make(map[string]any, len(c.Nodes))
	for id, io := range c.Nodes {
		nodes[id] = map[string]any{"input": io.Input, "output": io.Output}
	}

	state := c.State
	if state == nil {
		state = map[string]any{}
	}

	root := map[string]any{"state": state, "nodes": nodes}
	for key, value := range c.Extra {
		root[key] = value
	}

	return root
}

// With returns a copy of the context with extra scope added.
func (c Context) With(scope map[string]any) Context {
	extra := make(map[string]any, len(c.Extra)+len(scope))
	for key, value := range c.Extra {
		extra[key] = value
	}

	for key, value := range scope {
		extra[key] = value
	}

	c.Extra = extra

	return c
}

// RenderError reports a template that failed to compile or execute.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render template %q: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Render renders tpl against ctx. Strings without mustaches are returned as is.
func Render(tpl string, ctx Context) (string, error) {
	if !strings.Contains(tpl, "{{") {
		return tpl, nil
	}

	parsed, err := compile(tpl)
	if err != nil {
		return "", &RenderError{Template: tpl, Err: err}
	}

	out, err := parsed.Exec(ctx.Map())
	if err != nil {
		return "", &RenderError{Template: tpl, Err: err}
	}

	return out, nil
}

// RenderOrOriginal renders tpl and falls back to the unrendered template when
// rendering fails.
func RenderOrOriginal(tpl string, ctx Context) string {
	out, err := Render(tpl, ctx)
	if err != nil {
		return tpl
	}

	return out
}

// RenderValue renders tpl and, when tpl calls the json helper, decodes the
// output so templates such as {{json state.items}} produce structured values.
// Other output, and output that is not valid JSON, stays a string.
func RenderValue(tpl string, ctx Context) any {
	out := RenderOrOriginal(tpl, ctx)
	if !UsesJSON(tpl) {
		return out
	}

	var decoded any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &decoded); err != nil {
		return out
	}

	return decoded
}

// RenderMap renders every string value of data, recursing into nested maps and
// slices. Non-string values are kept.
func RenderMap(data map[string]any, ctx Context) map[string]any {
	result := make(map[string]any, len(data))
	for key, value := range data {
		result[key] = renderAny(value, ctx)
	}

	return result
}

func renderAny(value any, ctx Context) any {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v
		}

		return RenderValue(v, ctx)
	case map[string]any:
		return RenderMap(v, ctx)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = renderAny(item, ctx)
		}

		return items
	default:
		return value
	}
}

func compile(tpl string) (*raymond.Template, error) {
	if cached, ok := compiled.Get(tpl); ok {
		return cached.(*raymond.Template), nil
	}

	parsed, err := raymond.Parse(unescapeMustaches(tpl))
	if err != nil {
		return nil, err
	}

	compiled.Set(tpl, parsed, cache.DefaultExpiration)

	return parsed, nil
}
