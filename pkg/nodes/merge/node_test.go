package merge

import (
	"context"
	"testing"

	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_Execute_PassesStateThrough(t *testing.T) {
	t.Parallel()

	node, err := NewFactory().Create(context.Background(), "join", nil)
	require.NoError(t, err)

	state := map[string]any{"left": "done", "right": float64(2)}

	result, err := node.Execute(context.Background(), testutil.NewNodeContext(state), map[string]any{"ignored": true})
	require.NoError(t, err)
	assert.Equal(t, state, result.Output)
	assert.Empty(t, result.NextEdgeLabel)
	assert.Equal(t, "merge", node.Type())
	assert.NoError(t, node.Validate(map[string]any{"anything": 1}))
}
