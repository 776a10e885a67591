package code

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Factory creates code nodes.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create creates a new code node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return models.NodeTypeCode
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Code"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Runs a JavaScript or Risor snippet against the execution state"
}

// Schema returns the JSON schema for code node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Script body. JavaScript runs as an async function of (ctx, state, input, nodes, render)",
			},
			"language": map[string]any{
				"type":    "string",
				"enum":    []any{LanguageJavaScript, LanguageRisor},
				"default": LanguageJavaScript,
			},
			"timeoutMs": map[string]any{
				"type":    "number",
				"minimum": 1,
				"default": DefaultTimeout.Milliseconds(),
			},
		},
		"required": []any{"code"},
	}
}
