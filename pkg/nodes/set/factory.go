package set

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Factory creates set nodes.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create creates a new set node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return models.NodeTypeSet
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Set"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Renders values and merges them into the execution state"
}

// Schema returns the JSON schema for set node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"values": map[string]any{
				"type":        "object",
				"description": "Keys to write. String values are templates; {{json x}} keeps structure.",
				"examples": []map[string]any{
					{"status": "processed", "user": "{{json input.user}}"},
				},
			},
		},
		"required": []string{"values"},
	}
}
