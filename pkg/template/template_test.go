package template

import (
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() Context {
	return Context{
		State: map[string]any{
			"name":  "Ada",
			"count": float64(3),
			"user": map[string]any{
				"email": "ada@example.com",
				"tags":  []any{"admin", "ops"},
			},
			"active": true,
			"title":  "  Hello World  ",
		},
		Nodes: map[string]models.NodeIO{
			"http": {
				Input:  map[string]any{"url": "https://example.com"},
				Output: map[string]any{"status": float64(200), "body": map[string]any{"ok": true}},
			},
		},
	}
}

func TestRender_Variables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"plain text", "no templates here", "no templates here"},
		{"state value", "Hi {{state.name}}", "Hi Ada"},
		{"nested value", "{{state.user.email}}", "ada@example.com"},
		{"node output", "{{nodes.http.output.status}}", "200"},
		{"missing value", "[{{state.missing.deep}}]", "[]"},
		{"no html escaping", "{{state.html}}", "<b>&</b>"},
		{"triple stash", "{{{state.html}}}", "<b>&</b>"},
		{"if block", "{{#if nodes.http.output.body.ok}}true{{else}}false{{/if}}", "true"},
		{"each block", "{{#each state.user.tags}}{{this}};{{/each}}", "admin;ops;"},
	}

	ctx := testContext()
	ctx.State["html"] = "<b>&</b>"

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := Render(tt.template, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestRender_Helpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"eq numbers", "{{eq state.count 3}}", "true"},
		{"eq strings", `{{eq state.name "Ada"}}`, "true"},
		{"eq is strict", `{{eq state.count "3"}}`, "false"},
		{"not", "{{not state.active}}", "false"},
		{"and", "{{and state.active state.name}}", "true"},
		{"or", "{{or state.missing state.active}}", "true"},
		{"gt", "{{gt state.count 2}}", "true"},
		{"lt", "{{lt state.count 2}}", "false"},
		{"gt non numeric", "{{gt state.name 2}}", "false"},
		{"lowercase", "{{lowercase state.name}}", "ada"},
		{"uppercase", "{{uppercase state.name}}", "ADA"},
		{"trim", "[{{trim state.title}}]", "[Hello World]"},
		{"case passthrough", "{{uppercase state.count}}", "3"},
		{"path", `{{path "user.email" state}}`, "ada@example.com"},
		{"path index", `{{path "user.tags.1" state}}`, "ops"},
		{"path missing", `[{{path "user.nope.x" state}}]`, "[]"},
		{"subexpression", `{{#if (eq state.name "Ada")}}yes{{else}}no{{/if}}`, "yes"},
		{"json", "{{json state.user.tags}}", "[\n  \"admin\",\n  \"ops\"\n]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := Render(tt.template, testContext())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestRender_Errors(t *testing.T) {
	t.Parallel()

	malformed := []string{
		"Hello {{state.name",
		"{{#if state.active}}unclosed",
		"{{#each}}{{/if}}",
	}

	for _, tpl := range malformed {
		_, err := Render(tpl, testContext())

		var renderErr *RenderError
		require.ErrorAs(t, err, &renderErr, tpl)
		assert.Equal(t, tpl, renderErr.Template)

		assert.Equal(t, tpl, RenderOrOriginal(tpl, testContext()))
	}
}

func TestRenderValue(t *testing.T) {
	t.Parallel()

	ctx := testContext()

	assert.Equal(t, map[string]any{"email": "ada@example.com", "tags": []any{"admin", "ops"}}, RenderValue("{{json state.user}}", ctx))
	assert.Equal(t, float64(3), RenderValue("{{json state.count}}", ctx))
	assert.Equal(t, true, RenderValue("{{{json state.active}}}", ctx))
	assert.Equal(t, "Ada", RenderValue("{{state.name}}", ctx))
	assert.Equal(t, "{{broken", RenderValue("{{broken", ctx))
}

func TestRenderValue_KeepsStringsWithoutJSONHelper(t *testing.T) {
	t.Parallel()

	ctx := testContext()

	tests := []struct {
		name string
		tpl  string
	}{
		{"number", "{{state.count}}"},
		{"boolean", "{{state.active}}"},
		{"numeric literal", "123"},
		{"json looking text", `{"a": {{state.count}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := RenderValue(tt.tpl, ctx)
			assert.IsType(t, "", out)
			assert.Equal(t, RenderOrOriginal(tt.tpl, ctx), out)
		})
	}
}

func TestUsesJSON(t *testing.T) {
	t.Parallel()

	assert.True(t, UsesJSON("{{json state.user}}"))
	assert.True(t, UsesJSON("{{{ json state.user }}}"))
	assert.True(t, UsesJSON(`{"tags": {{json input.tags}}}`))
	assert.True(t, UsesJSON("{{uppercase (json state.user)}}"))
	assert.False(t, UsesJSON("{{state.json}}"))
	assert.False(t, UsesJSON("{{jsonish state.user}}"))
	assert.False(t, UsesJSON("plain json text"))
}

func TestRenderMap(t *testing.T) {
	t.Parallel()

	rendered := RenderMap(map[string]any{
		"greeting": "Hello {{state.name}}",
		"count":    "{{state.count}}",
		"static":   42,
		"nested":   map[string]any{"email": "{{state.user.email}}"},
		"list":     []any{"{{state.name}}", 1},
	}, testContext())

	assert.Equal(t, "Hello Ada", rendered["greeting"])
	assert.Equal(t, float64(3), rendered["count"])
	assert.Equal(t, 42, rendered["static"])
	assert.Equal(t, map[string]any{"email": "ada@example.com"}, rendered["nested"])
	assert.Equal(t, []any{"Ada", 1}, rendered["list"])
}

func TestContext_With(t *testing.T) {
	t.Parallel()

	base := testContext()
	scoped := base.With(map[string]any{"input": map[string]any{"id": "42"}})

	out, err := Render("{{input.id}}-{{state.name}}", scoped)
	require.NoError(t, err)
	assert.Equal(t, "42-Ada", out)
	assert.Nil(t, base.Extra)
}

func TestBareVariable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBareVariable("{{state.user}}"))
	assert.True(t, IsBareVariable("  {{ nodes.http-1.output }} "))
	assert.False(t, IsBareVariable("{{json state.user}}"))
	assert.False(t, IsBareVariable("user: {{state.user}}"))
	assert.False(t, IsBareVariable("{{else}}"))

	assert.Equal(t, "{{json state.user}}", WrapBareVariable("{{state.user}}"))
	assert.Equal(t, "id={{state.id}}", WrapBareVariable("id={{state.id}}"))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"a": map[string]any{"b": []any{map[string]any{"c": "deep"}}},
	}

	value, ok := Lookup(data, "a.b.0.c")
	require.True(t, ok)
	assert.Equal(t, "deep", value)

	value, ok = Lookup(data, "$.a.b[0].c")
	require.True(t, ok)
	assert.Equal(t, "deep", value)

	_, ok = Lookup(data, "a.x.y")
	assert.False(t, ok)

	_, ok = Lookup(nil, "a")
	assert.False(t, ok)
}

func TestEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, Equal(1, 1.0))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, ""))
	assert.False(t, Equal("1", 1))
	assert.True(t, Equal([]any{"a"}, []any{"a"}))
}

func TestUnescapeMustaches(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"{{a}}":                          "{{{a}}}",
		"{{{a}}}":                        "{{{a}}}",
		"{{#if a}}{{b}}{{else}}c{{/if}}": "{{#if a}}{{{b}}}{{else}}c{{/if}}",
		"{{!-- note }} --}}x":            "{{!-- note }} --}}x",
		"{{~a~}}":                        "{{~a~}}",
		"{{json a}}":                     "{{{json a}}}",
		"{{unclosed":                     "{{unclosed",
	}

	for in, expected := range tests {
		assert.Equal(t, expected, unescapeMustaches(in), in)
	}
}
