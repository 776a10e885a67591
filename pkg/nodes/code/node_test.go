package code

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_Execute_JavaScript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		code     string
		input    map[string]any
		state    map[string]any
		expected map[string]any
	}{
		{
			name:     "returns object",
			code:     "return { sum: input.a + input.b }",
			input:    map[string]any{"a": float64(1), "b": float64(2)},
			expected: map[string]any{"sum": float64(3)},
		},
		{
			name:     "wraps scalar",
			code:     "return state.count * 10",
			state:    map[string]any{"count": float64(4)},
			expected: map[string]any{"result": float64(40)},
		},
		{
			name:     "awaits promises",
			code:     "const v = await Promise.resolve('done'); return { v }",
			expected: map[string]any{"v": "done"},
		},
		{
			name:     "renders code before running",
			code:     `return { greeting: "Hello {{input.name}}" }`,
			input:    map[string]any{"name": "Ada"},
			expected: map[string]any{"greeting": "Hello Ada"},
		},
		{
			name:     "undefined result",
			code:     "const x = 1",
			expected: map[string]any{"result": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			node, err := NewNode("code", map[string]any{"code": tt.code})
			require.NoError(t, err)

			result, err := node.Execute(context.Background(), testutil.NewNodeContext(tt.state), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Output)
		})
	}
}

func TestNode_Execute_JavaScriptContext(t *testing.T) {
	t.Parallel()

	node, err := NewNode("code", map[string]any{
		"code": `ctx.log("running", { node: ctx.nodeId }); await ctx.saveState({ seen: true }); return { id: ctx.executionId }`,
	})
	require.NoError(t, err)

	nctx := testutil.NewNodeContext(nil)

	result, err := node.Execute(context.Background(), nctx, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "exec-test"}, result.Output)
	assert.Equal(t, true, nctx.State()["seen"])

	require.Len(t, nctx.Logs, 1)
	assert.Equal(t, "running", nctx.Logs[0].Message)
	assert.Equal(t, "node-test", nctx.Logs[0].Data["node"])
}

func TestNode_Execute_JavaScriptErrors(t *testing.T) {
	t.Parallel()

	t.Run("thrown error is logged and returned", func(t *testing.T) {
		t.Parallel()

		node, err := NewNode("code", map[string]any{"code": `throw new Error("boom")`})
		require.NoError(t, err)

		nctx := testutil.NewNodeContext(nil)

		_, err = node.Execute(context.Background(), nctx, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")

		require.Len(t, nctx.Logs, 1)
		assert.Equal(t, slog.LevelError, nctx.Logs[0].Level)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		node, err := NewNode("code", map[string]any{"code": "while (true) {}", "timeoutMs": float64(50)})
		require.NoError(t, err)

		_, err = node.Execute(context.Background(), testutil.NewNodeContext(nil), nil)
		require.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("syntax error", func(t *testing.T) {
		t.Parallel()

		node, err := NewNode("code", map[string]any{"code": "return {"})
		require.NoError(t, err)

		_, err = node.Execute(context.Background(), testutil.NewNodeContext(nil), nil)
		require.Error(t, err)
	})
}

func TestNewNode_Timeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    any
		expected time.Duration
	}{
		{"float", float64(50), 50 * time.Millisecond},
		{"int", 50, 50 * time.Millisecond},
		{"int64", int64(1500), 1500 * time.Millisecond},
		{"json number", json.Number("250"), 250 * time.Millisecond},
		{"missing", nil, DefaultTimeout},
		{"zero", 0, DefaultTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			config := map[string]any{"code": "return 1"}
			if tt.value != nil {
				config["timeoutMs"] = tt.value
			}

			node, err := NewNode("code", config)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, node.timeout)
		})
	}
}

func TestNode_Execute_Risor(t *testing.T) {
	t.Parallel()

	node, err := NewNode("code", map[string]any{
		"code":     `input["n"] * 2`,
		"language": LanguageRisor,
	})
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), testutil.NewNodeContext(nil), map[string]any{"n": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": float64(4)}, result.Output)
}

func TestNode_Validate(t *testing.T) {
	t.Parallel()

	node := &Node{}

	assert.EqualError(t, node.Validate(map[string]any{}), "missing required field 'code'")
	assert.EqualError(t, node.Validate(map[string]any{"code": "1", "language": "python"}), "unsupported language 'python'")
	assert.NoError(t, node.Validate(map[string]any{"code": "1", "language": "risor"}))
}
