package condition

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Factory creates condition nodes.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create creates a new condition node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return models.NodeTypeCondition
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Condition"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Renders an expression and follows the true edge when it renders to \"true\", otherwise the false edge."
}

// Schema returns the JSON schema for condition node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Template that must render to the literal string true to take the true branch.",
				"examples": []string{
					`{{#if nodes.http.output.body.ok}}true{{else}}false{{/if}}`,
					`{{eq state.status "active"}}`,
					`{{gt input.count 10}}`,
				},
			},
			"trueLabel": map[string]any{
				"type":        "string",
				"description": "Edge label or handle followed when the expression is true.",
				"default":     DefaultTrueLabel,
			},
			"falseLabel": map[string]any{
				"type":        "string",
				"description": "Edge label or handle followed otherwise.",
				"default":     DefaultFalseLabel,
			},
		},
		"required": []string{"expression"},
	}
}
