package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/nodes/trigger"
	"github.com/dukex/flowrun/pkg/persistence"
)

// WebhookError is a rejected webhook request. Status is the HTTP status to answer with.
type WebhookError struct {
	Status  int
	Message string
}

func (e *WebhookError) Error() string {
	return e.Message
}

// WebhookRequest is an inbound webhook call.
type WebhookRequest struct {
	WorkflowID string
	Method     string
	Headers    map[string]string
	Query      map[string]string
	Body       map[string]any
}

type Webhook struct {
	persistence persistence.Persistence
	executions  *Execution
}

// NewWebhook creates a new webhook service.
func NewWebhook(p persistence.Persistence, executions *Execution) *Webhook {
	return &Webhook{persistence: p, executions: executions}
}

// Receive checks the request against the workflow's webhook.trigger node and starts
// an execution with stateIn {input, headers, query}. Checks run in order: workflow,
// trigger node, method, headers, payload. Rejections are *WebhookError.
func (w *Webhook) Receive(ctx context.Context, req WebhookRequest) (string, error) {
	workflow, err := w.persistence.WorkflowByID(ctx, req.WorkflowID)
	if persistence.IsWorkflowNotFound(err) {
		return "", &WebhookError{Status: http.StatusNotFound, Message: "workflow not found"}
	}

	if err != nil {
		return "", fmt.Errorf("failed to load workflow: %w", err)
	}

	if !workflow.IsActive {
		return "", &WebhookError{Status: http.StatusConflict, Message: "workflow is not active"}
	}

	nodes := workflow.NodesOfType(models.NodeTypeWebhookTrigger)
	if len(nodes) == 0 {
		return "", &WebhookError{Status: http.StatusNotFound, Message: "workflow has no webhook trigger"}
	}

	config, err := trigger.ParseWebhookConfig(nodes[0].Config)
	if err != nil {
		return "", &WebhookError{Status: http.StatusInternalServerError, Message: "invalid webhook trigger configuration"}
	}

	if !strings.EqualFold(req.Method, config.Method) {
		return "", &WebhookError{
			Status:  http.StatusMethodNotAllowed,
			Message: fmt.Sprintf("method %s not allowed, expected %s", strings.ToUpper(req.Method), config.Method),
		}
	}

	headers := canonicalHeaders(req.Headers)

	for name, expected := range config.Headers {
		if headers[http.CanonicalHeaderKey(name)] != expected {
			return "", &WebhookError{Status: http.StatusUnauthorized, Message: fmt.Sprintf("missing or invalid header '%s'", name)}
		}
	}

	for key, expected := range config.Payload {
		actual, ok := req.Body[key]
		if !ok || fmt.Sprint(actual) != fmt.Sprint(expected) {
			return "", &WebhookError{Status: http.StatusBadRequest, Message: fmt.Sprintf("missing or invalid payload field '%s'", key)}
		}
	}

	stateIn := map[string]any{
		"input":   nonNil(req.Body),
		"headers": stringMap(req.Headers),
		"query":   stringMap(req.Query),
	}

	return w.executions.enqueue(ctx, StartRequest{
		WorkflowID:  workflow.ID,
		StateIn:     stateIn,
		TriggerType: models.TriggerTypeWebhook,
	})
}

func canonicalHeaders(headers map[string]string) map[string]string {
	canonical := make(map[string]string, len(headers))

	for name, value := range headers {
		canonical[http.CanonicalHeaderKey(name)] = value
	}

	return canonical
}

func stringMap(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))

	for key, value := range values {
		out[key] = value
	}

	return out
}

func nonNil(body map[string]any) map[string]any {
	if body == nil {
		return map[string]any{}
	}

	return body
}
