package output

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Factory creates output nodes.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create creates a new output node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return models.NodeTypeOutput
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Output"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Captures the whole state or a single rendered expression as the result of a branch"
}

// Schema returns the JSON schema for output node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"captureAll": map[string]any{
				"type":    "boolean",
				"default": true,
			},
			"key": map[string]any{
				"type":    "string",
				"default": DefaultKey,
			},
			"expression": map[string]any{
				"type":        "string",
				"description": "Template captured when captureAll is false. A bare {{variable}} keeps object values.",
				"examples":    []string{"{{nodes.http.output.body}}", "Total: {{state.total}}"},
			},
		},
	}
}
