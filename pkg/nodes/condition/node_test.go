package condition

import (
	"context"
	"testing"

	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_Execute_TruthTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		expression string
		state      map[string]any
		expected   string
	}{
		{"literal true", "true", nil, "true"},
		{"padded upper case", "  TRUE \n", nil, "true"},
		{"literal false", "false", nil, "false"},
		{"truthy but not true", "yes", nil, "false"},
		{"number", "1", nil, "false"},
		{"empty", "", nil, "false"},
		{"eq helper", `{{eq state.status "active"}}`, map[string]any{"status": "active"}, "true"},
		{"eq helper mismatch", `{{eq state.status "active"}}`, map[string]any{"status": "paused"}, "false"},
		{"if block", `{{#if state.ok}}true{{else}}false{{/if}}`, map[string]any{"ok": true}, "true"},
		{"broken template", `{{#if state.ok}}true`, map[string]any{"ok": true}, "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			node, err := NewNode("check", map[string]any{"expression": tt.expression})
			require.NoError(t, err)

			result, err := node.Execute(context.Background(), testutil.NewNodeContext(tt.state), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.NextEdgeLabel)
			assert.Equal(t, tt.expected == "true", result.Output["result"])
		})
	}
}

func TestNode_Execute_CustomLabels(t *testing.T) {
	t.Parallel()

	node, err := NewNode("check", map[string]any{
		"expression": "{{gt input.count 10}}",
		"trueLabel":  "big",
		"falseLabel": "small",
	})
	require.NoError(t, err)

	nctx := testutil.NewNodeContext(nil)

	result, err := node.Execute(context.Background(), nctx, map[string]any{"count": 42})
	require.NoError(t, err)
	assert.Equal(t, "big", result.NextEdgeLabel)

	result, err = node.Execute(context.Background(), nctx, map[string]any{"count": 2})
	require.NoError(t, err)
	assert.Equal(t, "small", result.NextEdgeLabel)
}

func TestNewNode_MissingExpression(t *testing.T) {
	t.Parallel()

	_, err := NewNode("check", map[string]any{})
	require.EqualError(t, err, "missing required field 'expression'")

	node := &Node{}
	assert.Error(t, node.Validate(map[string]any{"expression": 1}))
	assert.NoError(t, node.Validate(map[string]any{"expression": "true"}))
}

func TestFactory(t *testing.T) {
	t.Parallel()

	factory := NewFactory()
	assert.Equal(t, "condition", factory.ID())

	node, err := factory.Create(context.Background(), "n1", map[string]any{"expression": "true"})
	require.NoError(t, err)
	assert.Equal(t, "n1", node.ID())
	assert.Equal(t, "condition", node.Type())
	assert.Contains(t, factory.Schema()["required"], "expression")
}
