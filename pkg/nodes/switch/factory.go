package switchnode

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Factory creates switch nodes.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create creates a new switch node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return models.NodeTypeSwitch
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Switch"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Evaluates ordered conditions and follows the edge of the first one that renders to \"true\"."
}

// Schema returns the JSON schema for switch node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"conditions": map[string]any{
				"type":        "array",
				"description": "Cases evaluated in order. The id of the first match selects the outgoing edge.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":         map[string]any{"type": "string", "minLength": 1},
						"label":      map[string]any{"type": "string"},
						"expression": map[string]any{"type": "string"},
					},
					"required": []string{"id", "expression"},
				},
			},
		},
		"required": []string{"conditions"},
		"examples": []map[string]any{
			{
				"conditions": []map[string]any{
					{"id": "vip", "label": "VIP", "expression": `{{gt input.total 1000}}`},
					{"id": "regular", "label": "Regular", "expression": "true"},
				},
			},
		},
	}
}
