package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	registry := NewRegistry(slog.Default())
	registry.RegisterDefaultNodes()

	return registry
}

func TestRegisterDefaultNodes(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)

	expected := []string{
		models.NodeTypeCode,
		models.NodeTypeCondition,
		models.NodeTypeCronTrigger,
		models.NodeTypeEditFields,
		models.NodeTypeHTTPRequest,
		models.NodeTypeItemLists,
		models.NodeTypeLog,
		models.NodeTypeManualTrigger,
		models.NodeTypeMerge,
		models.NodeTypeOutput,
		models.NodeTypeSet,
		models.NodeTypeSwitch,
		models.NodeTypeTransform,
		models.NodeTypeWait,
		models.NodeTypeWebhookTrigger,
	}

	types := make([]string, 0, len(expected))
	for _, nodeType := range registry.List() {
		types = append(types, nodeType.Type)
		assert.NotEmpty(t, nodeType.Name, nodeType.Type)
		assert.NotEmpty(t, nodeType.Description, nodeType.Type)
		assert.Equal(t, "object", nodeType.Schema["type"], nodeType.Type)
	}

	assert.Equal(t, expected, types)
}

func TestCreateNode(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)

	node, err := registry.CreateNode(context.Background(), models.NodeTypeHTTPRequest, "fetch", map[string]any{
		"url": "https://api.example.com/test",
	})
	require.NoError(t, err)
	assert.Equal(t, "fetch", node.ID())
	assert.Equal(t, models.NodeTypeHTTPRequest, node.Type())

	node, err = registry.CreateNode(context.Background(), models.NodeTypeMerge, "join", nil)
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeMerge, node.Type())
}

func TestCreateNode_Errors(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)

	_, err := registry.CreateNode(context.Background(), "nope", "n1", nil)
	require.ErrorIs(t, err, ErrUnknownNodeType)

	_, err = registry.CreateNode(context.Background(), models.NodeTypeCondition, "c1", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c1")
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)

	tests := []struct {
		name     string
		nodeType string
		config   map[string]any
		errText  string
	}{
		{
			name:     "valid http request",
			nodeType: models.NodeTypeHTTPRequest,
			config:   map[string]any{"url": "https://example.com", "timeoutMs": float64(5000)},
		},
		{
			name:     "schema violation",
			nodeType: models.NodeTypeHTTPRequest,
			config:   map[string]any{"url": float64(1)},
			errText:  "invalid config",
		},
		{
			name:     "missing required property",
			nodeType: models.NodeTypeCondition,
			config:   map[string]any{},
			errText:  "expression",
		},
		{
			name:     "node validation",
			nodeType: models.NodeTypeEditFields,
			config:   map[string]any{"fields": map[string]any{"a": "b"}, "mode": "replace"},
			errText:  "mode",
		},
		{
			name:     "unknown type",
			nodeType: "custom",
			config:   map[string]any{},
			errText:  "unknown node type 'custom'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := registry.ValidateConfig(tt.nodeType, tt.config)
			if tt.errText == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(slog.Default())

	_, ok := registry.Get(models.NodeTypeMerge)
	assert.False(t, ok)

	registry.RegisterDefaultNodes()

	factory, ok := registry.Get(models.NodeTypeMerge)
	require.True(t, ok)
	assert.Equal(t, "Merge", factory.Name())
}
