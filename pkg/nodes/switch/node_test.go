package switchnode

import (
	"context"
	"testing"

	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conditions(items ...map[string]any) map[string]any {
	list := make([]any, 0, len(items))
	for _, item := range items {
		list = append(list, item)
	}

	return map[string]any{"conditions": list}
}

func TestNode_Execute_FirstMatchWins(t *testing.T) {
	t.Parallel()

	node, err := NewNode("route", conditions(
		map[string]any{"id": "a", "expression": "false"},
		map[string]any{"id": "b", "expression": "true"},
		map[string]any{"id": "c", "expression": "true"},
	))
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), testutil.NewNodeContext(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "b", result.NextEdgeLabel)
	assert.False(t, result.BranchEnded)
	assert.Equal(t, "b", result.Output["matched"])
}

func TestNode_Execute_TemplatedCases(t *testing.T) {
	t.Parallel()

	node, err := NewNode("route", conditions(
		map[string]any{"id": "vip", "label": "VIP", "expression": "{{gt input.total 1000}}"},
		map[string]any{"id": "eu", "expression": `{{eq state.region "eu"}}`},
	))
	require.NoError(t, err)

	nctx := testutil.NewNodeContext(map[string]any{"region": "eu"})

	result, err := node.Execute(context.Background(), nctx, map[string]any{"total": 5000})
	require.NoError(t, err)
	assert.Equal(t, "vip", result.NextEdgeLabel)
	assert.Equal(t, "VIP", result.Output["label"])

	result, err = node.Execute(context.Background(), nctx, map[string]any{"total": 10})
	require.NoError(t, err)
	assert.Equal(t, "eu", result.NextEdgeLabel)
}

func TestNode_Execute_NoMatchEndsBranch(t *testing.T) {
	t.Parallel()

	node, err := NewNode("route", conditions(
		map[string]any{"id": "a", "expression": "false"},
		map[string]any{"id": "b", "expression": "nope"},
	))
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), testutil.NewNodeContext(nil), nil)
	require.NoError(t, err)
	assert.Empty(t, result.NextEdgeLabel)
	assert.True(t, result.BranchEnded)
}

func TestNewNode_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config map[string]any
		errMsg string
	}{
		{"missing conditions", map[string]any{}, "missing required field 'conditions'"},
		{"not an object", map[string]any{"conditions": []any{"x"}}, "condition 0 must be an object"},
		{"missing id", conditions(map[string]any{"expression": "true"}), "condition 0 missing 'id'"},
		{"missing expression", conditions(map[string]any{"id": "a"}), "condition 0 missing 'expression'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewNode("route", tt.config)
			require.EqualError(t, err, tt.errMsg)
		})
	}
}
