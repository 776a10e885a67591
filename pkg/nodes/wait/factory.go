package wait

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Factory creates wait nodes.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create creates a new wait node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return models.NodeTypeWait
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Wait"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Delays the branch for a duration using a delayed job"
}

// Schema returns the JSON schema for wait node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{
				"type":        []string{"number", "string"},
				"description": "Amount of time to wait. Strings are rendered as templates.",
				"examples":    []any{30, "{{state.retryAfter}}"},
			},
			"unit": map[string]any{
				"type":    "string",
				"enum":    []string{UnitSeconds, UnitMinutes, UnitHours},
				"default": UnitSeconds,
			},
		},
		"required": []string{"duration"},
	}
}
