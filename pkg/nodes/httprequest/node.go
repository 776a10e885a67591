// Package httprequest provides the HTTP request node.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

const (
	DefaultMethod  = http.MethodGet
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 5 * time.Minute
)

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true, http.MethodDelete: true,
	http.MethodPatch: true, http.MethodHead: true, http.MethodOptions: true,
}

// Config defines the configuration for HTTP request nodes.
type Config struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

// Node issues one HTTP request with templated method, url, headers and body.
type Node struct {
	id     string
	config Config
	client *http.Client
}

// NewNode creates a new HTTP request node.
func NewNode(id string, config map[string]any) (*Node, error) {
	parsed, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	return &Node{id: id, config: parsed, client: &http.Client{}}, nil
}

func parseConfig(config map[string]any) (Config, error) {
	parsed := Config{
		Method:  DefaultMethod,
		Headers: map[string]string{},
		Timeout: DefaultTimeout,
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return parsed, errors.New("missing required field 'url'")
	}

	parsed.URL = url

	if method, ok := config["method"].(string); ok && method != "" {
		parsed.Method = strings.ToUpper(method)
		if !strings.Contains(method, "{{") && !validMethods[parsed.Method] {
			return parsed, fmt.Errorf("invalid HTTP method: %s", method)
		}
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			parsed.Headers[key] = fmt.Sprint(value)
		}
	}

	parsed.Body = config["body"]

	if timeout, ok := toMillis(config["timeoutMs"]); ok {
		if timeout <= 0 || timeout > MaxTimeout {
			return parsed, fmt.Errorf("timeoutMs must be between 1 and %d", MaxTimeout.Milliseconds())
		}

		parsed.Timeout = timeout
	}

	return parsed, nil
}

func toMillis(value any) (time.Duration, bool) {
	switch v := value.(type) {
	case float64:
		return time.Duration(v) * time.Millisecond, true
	case int:
		return time.Duration(v) * time.Millisecond, true
	case int64:
		return time.Duration(v) * time.Millisecond, true
	default:
		return 0, false
	}
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeHTTPRequest
}

// Execute performs the request. Transport failures and timeouts are returned
// as errors; any HTTP status is a successful run.
func (n *Node) Execute(ctx context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	tctx := nctx.Template(map[string]any{"input": input})

	url := template.RenderOrOriginal(n.config.URL, tctx)
	method := strings.ToUpper(template.RenderOrOriginal(n.config.Method, tctx))

	body, err := n.renderBody(tctx)
	if err != nil {
		return protocol.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range n.config.Headers {
		req.Header.Set(key, template.RenderOrOriginal(value, tctx))
	}

	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return protocol.Result{}, fmt.Errorf("%s %s timed out after %s", method, url, n.config.Timeout)
		}

		return protocol.Result{}, fmt.Errorf("%s %s failed: %w", method, url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	return protocol.Result{
		Output: map[string]any{
			"status":  resp.StatusCode,
			"headers": flattenHeaders(resp.Header),
			"body":    decodeBody(resp.Header.Get("Content-Type"), respBody),
		},
	}, nil
}

func (n *Node) renderBody(tctx template.Context) (io.Reader, error) {
	switch body := n.config.Body.(type) {
	case nil:
		return nil, nil
	case string:
		if body == "" {
			return nil, nil
		}

		return strings.NewReader(template.RenderOrOriginal(body, tctx)), nil
	case map[string]any:
		data, err := json.Marshal(template.RenderMap(body, tctx))
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}

		return strings.NewReader(string(data)), nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}

		return strings.NewReader(string(data)), nil
	}
}

func flattenHeaders(header http.Header) map[string]any {
	flat := make(map[string]any, len(header))
	for key, values := range header {
		flat[strings.ToLower(key)] = strings.Join(values, ", ")
	}

	return flat
}

func decodeBody(contentType string, body []byte) any {
	if strings.Contains(strings.ToLower(contentType), "json") {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			return decoded
		}
	}

	return string(body)
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	_, err := parseConfig(config)

	return err
}
