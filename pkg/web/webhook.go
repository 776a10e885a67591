package web

import (
	"encoding/json"
	"errors"

	"github.com/dukex/flowrun/pkg/services"
	"github.com/gofiber/fiber/v3"
)

// ReceiveWebhook starts an execution of the workflow in the path when the
// request passes its webhook.trigger checks. Any method is routed here.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	body, err := webhookBody(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(WebhookErrorResponse{Error: "request body must be a JSON object"})
	}

	executionID, err := h.webhookService.Receive(c.Context(), services.WebhookRequest{
		WorkflowID: c.Params("workflowId"),
		Method:     c.Method(),
		Headers:    requestHeaders(c),
		Query:      requestQuery(c),
		Body:       body,
	})

	var webhookErr *services.WebhookError
	if errors.As(err, &webhookErr) {
		return c.Status(webhookErr.Status).JSON(WebhookErrorResponse{Error: webhookErr.Message})
	}

	if err != nil {
		h.logger.Error("webhook failed", "workflow_id", c.Params("workflowId"), "error", err)

		return c.Status(fiber.StatusInternalServerError).JSON(WebhookErrorResponse{Error: "internal error"})
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecutionAccepted{ExecutionID: executionID})
}

func webhookBody(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	return body, nil
}

func requestHeaders(c fiber.Ctx) map[string]string {
	headers := make(map[string]string)

	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})

	return headers
}

func requestQuery(c fiber.Ctx) map[string]string {
	query := make(map[string]string)

	c.Request().URI().QueryArgs().VisitAll(func(key, value []byte) {
		query[string(key)] = string(value)
	})

	return query
}
