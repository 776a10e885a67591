// Package trigger provides the start nodes of a workflow: manual, cron and webhook.
package trigger

import (
	"context"
	"fmt"
	"maps"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// PayloadNode starts an execution and seeds the state with a configured payload.
// It backs both manual.trigger and cron.trigger.
type PayloadNode struct {
	id       string
	nodeType string
	payload  map[string]any
}

// NewPayloadNode creates a manual or cron trigger node.
func NewPayloadNode(id, nodeType string, config map[string]any) (*PayloadNode, error) {
	node := &PayloadNode{id: id, nodeType: nodeType}
	if err := node.Validate(config); err != nil {
		return nil, err
	}

	node.payload, _ = config["payload"].(map[string]any)

	return node, nil
}

// ID returns the node ID.
func (n *PayloadNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *PayloadNode) Type() string {
	return n.nodeType
}

// Execute merges a non-empty payload into the state. The output is the trigger
// input overlaid with the payload.
func (n *PayloadNode) Execute(ctx context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	output := make(map[string]any, len(input)+len(n.payload))
	maps.Copy(output, input)

	if len(n.payload) > 0 {
		if err := nctx.SaveState(ctx, n.payload); err != nil {
			return protocol.Result{}, fmt.Errorf("failed to save payload: %w", err)
		}

		maps.Copy(output, n.payload)
	}

	return protocol.Result{Output: output}, nil
}

// Validate validates the node configuration.
func (n *PayloadNode) Validate(config map[string]any) error {
	if payload, ok := config["payload"]; ok && payload != nil {
		if _, ok := payload.(map[string]any); !ok {
			return fmt.Errorf("field 'payload' must be an object")
		}
	}

	return nil
}

// WebhookNode passes the validated inbound request payload through.
type WebhookNode struct {
	id     string
	config WebhookConfig
}

// NewWebhookNode creates a new webhook trigger node.
func NewWebhookNode(id string, config map[string]any) (*WebhookNode, error) {
	parsed, err := ParseWebhookConfig(config)
	if err != nil {
		return nil, err
	}

	return &WebhookNode{id: id, config: parsed}, nil
}

// ID returns the node ID.
func (n *WebhookNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *WebhookNode) Type() string {
	return models.NodeTypeWebhookTrigger
}

// Execute returns its input unchanged.
func (n *WebhookNode) Execute(_ context.Context, _ protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	return protocol.Result{Output: maps.Clone(input)}, nil
}

// Validate validates the node configuration.
func (n *WebhookNode) Validate(config map[string]any) error {
	_, err := ParseWebhookConfig(config)

	return err
}
