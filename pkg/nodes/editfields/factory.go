package editfields

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Factory creates edit fields nodes.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create creates a new edit fields node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return models.NodeTypeEditFields
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Edit Fields"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Appends rendered fields to the state, or keeps only the given fields"
}

// Schema returns the JSON schema for edit fields node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fields": map[string]any{
				"type":        "object",
				"description": "Fields to write. String values are templates.",
			},
			"mode": map[string]any{
				"type":    "string",
				"enum":    []string{ModeAppend, ModeKeepOnly},
				"default": ModeAppend,
			},
		},
		"required": []string{"fields"},
	}
}
