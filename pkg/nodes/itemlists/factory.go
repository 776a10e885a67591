package itemlists

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Factory creates item lists nodes.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create creates a new item lists node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return models.NodeTypeItemLists
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Item Lists"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Limits or sorts a list stored in the state"
}

// Schema returns the JSON schema for item lists node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Dotted path of the list in the state. Nested paths write to 'items'.",
				"examples":    []string{"orders", "response.data"},
			},
			"operation": map[string]any{
				"type": "string",
				"enum": []string{OperationLimit, OperationSort},
			},
			"limit":  map[string]any{"type": "integer", "minimum": 0},
			"sortBy": map[string]any{"type": "string"},
			"order": map[string]any{
				"type":    "string",
				"enum":    []string{OrderAsc, OrderDesc},
				"default": OrderAsc,
			},
		},
		"required": []string{"path", "operation"},
	}
}
