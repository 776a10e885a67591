package trigger

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

var payloadSchema = map[string]any{
	"type":        "object",
	"description": "Values merged into the execution state when the trigger fires.",
}

// ManualFactory creates manual.trigger nodes.
type ManualFactory struct{}

// NewManualFactory creates a new manual trigger factory.
func NewManualFactory() protocol.NodeFactory {
	return &ManualFactory{}
}

func (f *ManualFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewPayloadNode(id, models.NodeTypeManualTrigger, config)
}

func (f *ManualFactory) ID() string {
	return models.NodeTypeManualTrigger
}

func (f *ManualFactory) Name() string {
	return "Manual Trigger"
}

func (f *ManualFactory) Description() string {
	return "Starts the workflow on demand from the API or the command line"
}

func (f *ManualFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"payload": payloadSchema},
	}
}

// CronFactory creates cron.trigger nodes. The schedule itself lives on the
// workflow's cron Trigger.
type CronFactory struct{}

// NewCronFactory creates a new cron trigger factory.
func NewCronFactory() protocol.NodeFactory {
	return &CronFactory{}
}

func (f *CronFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewPayloadNode(id, models.NodeTypeCronTrigger, config)
}

func (f *CronFactory) ID() string {
	return models.NodeTypeCronTrigger
}

func (f *CronFactory) Name() string {
	return "Cron Trigger"
}

func (f *CronFactory) Description() string {
	return "Starts the workflow on the schedule of the workflow's cron triggers"
}

func (f *CronFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"payload": payloadSchema},
	}
}

// WebhookFactory creates webhook.trigger nodes.
type WebhookFactory struct{}

// NewWebhookFactory creates a new webhook trigger factory.
func NewWebhookFactory() protocol.NodeFactory {
	return &WebhookFactory{}
}

func (f *WebhookFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewWebhookNode(id, config)
}

func (f *WebhookFactory) ID() string {
	return models.NodeTypeWebhookTrigger
}

func (f *WebhookFactory) Name() string {
	return "Webhook Trigger"
}

func (f *WebhookFactory) Description() string {
	return "Starts the workflow from an HTTP request to /webhooks/{workflowId} after method, header and payload checks"
}

func (f *WebhookFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"method": map[string]any{
				"type":    "string",
				"default": "POST",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "Required headers. Names are case-insensitive, values must match exactly.",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"payload": map[string]any{
				"type":        "object",
				"description": "Required top-level body keys and their expected values.",
			},
		},
	}
}
