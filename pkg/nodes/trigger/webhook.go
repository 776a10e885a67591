package trigger

import (
	"fmt"
	"net/http"
	"strings"
)

// WebhookConfig holds the checks an inbound webhook request must pass.
type WebhookConfig struct {
	Method  string
	Headers map[string]string
	Payload map[string]any
}

// ParseWebhookConfig reads a webhook.trigger node configuration. The method
// defaults to POST.
func ParseWebhookConfig(config map[string]any) (WebhookConfig, error) {
	parsed := WebhookConfig{
		Method:  http.MethodPost,
		Headers: map[string]string{},
		Payload: map[string]any{},
	}

	if method, ok := config["method"].(string); ok && method != "" {
		parsed.Method = strings.ToUpper(method)
	}

	if raw, ok := config["headers"]; ok && raw != nil {
		headers, ok := raw.(map[string]any)
		if !ok {
			return parsed, fmt.Errorf("field 'headers' must be an object")
		}

		for name, value := range headers {
			parsed.Headers[name] = fmt.Sprint(value)
		}
	}

	if raw, ok := config["payload"]; ok && raw != nil {
		payload, ok := raw.(map[string]any)
		if !ok {
			return parsed, fmt.Errorf("field 'payload' must be an object")
		}

		parsed.Payload = payload
	}

	return parsed, nil
}
