package httprequest

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Factory creates HTTP request nodes.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create creates a new HTTP request node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return models.NodeTypeHTTPRequest
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "HTTP Request"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Makes an HTTP request. Method, url, headers and body support templates; JSON responses are decoded."
}

// Schema returns the JSON schema for HTTP request node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Target URL, templates allowed.",
				"examples":    []string{"https://api.example.com/users/{{state.userId}}"},
			},
			"method": map[string]any{
				"type":    "string",
				"default": DefaultMethod,
				"examples": []string{
					"GET", "POST", "PUT", "PATCH", "DELETE",
				},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        []string{"string", "object", "array"},
				"description": "Raw string body or an object whose string values are rendered and JSON encoded.",
			},
			"timeoutMs": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": MaxTimeout.Milliseconds(),
				"default": DefaultTimeout.Milliseconds(),
			},
		},
		"required": []string{"url"},
	}
}
