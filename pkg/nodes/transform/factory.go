package transform

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Factory creates transform nodes.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create creates a new transform node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return models.NodeTypeTransform
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Transform"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Renders an expression against the input and outputs it as result"
}

// Schema returns the JSON schema for transform node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Template rendered against input, state and nodes",
				"examples": []string{
					`{"total": {{input.amount}}, "currency": "{{uppercase input.currency}}"}`,
				},
			},
			"language": map[string]any{
				"type":    "string",
				"enum":    []string{"template", "jsonata"},
				"default": "template",
			},
		},
		"required": []string{"expression"},
	}
}
