package itemlists

import (
	"context"
	"testing"

	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orders() []any {
	return []any{
		map[string]any{"id": "a", "total": float64(30)},
		map[string]any{"id": "b", "total": float64(10)},
		map[string]any{"id": "c"},
		map[string]any{"id": "d", "total": float64(20)},
	}
}

func ids(items any) []string {
	var result []string
	for _, item := range items.([]any) {
		result = append(result, item.(map[string]any)["id"].(string))
	}

	return result
}

func TestNode_Execute_Limit(t *testing.T) {
	t.Parallel()

	node, err := NewNode("list", map[string]any{"path": "orders", "operation": "limit", "limit": float64(2)})
	require.NoError(t, err)

	nctx := testutil.NewNodeContext(map[string]any{"orders": orders()})

	result, err := node.Execute(context.Background(), nctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(result.Output["orders"]))
	assert.Equal(t, []string{"a", "b"}, ids(nctx.State()["orders"]))
}

func TestNode_Execute_LimitLargerThanList(t *testing.T) {
	t.Parallel()

	node, err := NewNode("list", map[string]any{"path": "orders", "operation": "limit", "limit": 10})
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), testutil.NewNodeContext(map[string]any{"orders": orders()}), nil)
	require.NoError(t, err)
	assert.Len(t, result.Output["orders"], 4)
}

func TestNode_Execute_Sort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		order    string
		expected []string
	}{
		{"ascending", "asc", []string{"b", "d", "a", "c"}},
		{"descending", "desc", []string{"a", "d", "b", "c"}},
		{"default ascending", "", []string{"b", "d", "a", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			node, err := NewNode("list", map[string]any{"path": "orders", "operation": "sort", "sortBy": "total", "order": tt.order})
			require.NoError(t, err)

			result, err := node.Execute(context.Background(), testutil.NewNodeContext(map[string]any{"orders": orders()}), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(result.Output["orders"]))
		})
	}
}

func TestNode_Execute_NestedPathWritesItems(t *testing.T) {
	t.Parallel()

	node, err := NewNode("list", map[string]any{"path": "response.data", "operation": "sort", "sortBy": "id", "order": "desc"})
	require.NoError(t, err)

	nctx := testutil.NewNodeContext(map[string]any{"response": map[string]any{"data": orders()}})

	result, err := node.Execute(context.Background(), nctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(result.Output[ItemsKey]))

	state := nctx.State()
	assert.Contains(t, state, ItemsKey)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(state["response"].(map[string]any)["data"]))
}

func TestNode_Execute_NotAList(t *testing.T) {
	t.Parallel()

	node, err := NewNode("list", map[string]any{"path": "missing", "operation": "limit", "limit": 1})
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), testutil.NewNodeContext(nil), nil)
	require.EqualError(t, err, "path 'missing' does not reference a list")
}

func TestNewNode_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config map[string]any
		errMsg string
	}{
		{"missing path", map[string]any{"operation": "limit"}, "missing required field 'path'"},
		{"bad operation", map[string]any{"path": "x", "operation": "filter"}, "invalid operation 'filter', expected 'limit' or 'sort'"},
		{"bad limit", map[string]any{"path": "x", "operation": "limit", "limit": -1}, "field 'limit' must be a non-negative integer"},
		{"missing sortBy", map[string]any{"path": "x", "operation": "sort"}, "missing required field 'sortBy'"},
		{"bad order", map[string]any{"path": "x", "operation": "sort", "sortBy": "id", "order": "up"}, "invalid order 'up'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewNode("list", tt.config)
			require.EqualError(t, err, tt.errMsg)
		})
	}
}
