package set

import (
	"context"
	"testing"

	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_Execute_MergesRenderedValues(t *testing.T) {
	t.Parallel()

	node, err := NewNode("set", map[string]any{
		"values": map[string]any{
			"status":   "processed",
			"greeting": "Hello {{input.name}}",
			"user":     "{{json input.user}}",
			"count":    float64(1),
		},
	})
	require.NoError(t, err)

	nctx := testutil.NewNodeContext(map[string]any{"keep": "me", "count": float64(0)})
	input := map[string]any{"name": "Ada", "user": map[string]any{"id": "u1"}}

	result, err := node.Execute(context.Background(), nctx, input)
	require.NoError(t, err)

	expected := map[string]any{
		"status":   "processed",
		"greeting": "Hello Ada",
		"user":     map[string]any{"id": "u1"},
		"count":    float64(1),
	}
	assert.Equal(t, expected, result.Output)

	state := nctx.State()
	assert.Equal(t, "me", state["keep"])
	assert.Equal(t, float64(1), state["count"])
	assert.Equal(t, map[string]any{"id": "u1"}, state["user"])
}

func TestNode_Execute_KeepsRenderedStrings(t *testing.T) {
	t.Parallel()

	node, err := NewNode("set", map[string]any{
		"values": map[string]any{
			"code":    "{{state.code}}",
			"enabled": "{{state.enabled}}",
		},
	})
	require.NoError(t, err)

	nctx := testutil.NewNodeContext(map[string]any{"code": "123", "enabled": "true"})

	result, err := node.Execute(context.Background(), nctx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"code": "123", "enabled": "true"}, result.Output)
}

func TestNewNode_RequiresValues(t *testing.T) {
	t.Parallel()

	_, err := NewNode("set", map[string]any{"values": "x"})
	require.EqualError(t, err, "missing required field 'values'")
}
