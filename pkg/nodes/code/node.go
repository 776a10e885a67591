// Package code provides the node that runs user supplied scripts.
package code

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

const (
	LanguageJavaScript = "javascript"
	LanguageRisor      = "risor"

	DefaultTimeout = 10 * time.Second
)

// ErrTimeout is returned when a script runs longer than its timeout.
var ErrTimeout = errors.New("code execution timed out")

// Runtime evaluates a script body with the given globals.
type Runtime interface {
	Run(ctx context.Context, source string, env Env) (any, error)
}

// Env is what a script can see.
type Env struct {
	State   map[string]any
	Input   map[string]any
	Nodes   map[string]any
	NodeCtx protocol.NodeContext
	Timeout time.Duration
}

var runtimes = map[string]Runtime{
	LanguageJavaScript: &javaScriptRuntime{},
	LanguageRisor:      &risorRuntime{},
}

// Node renders its code as a template and then evaluates it.
type Node struct {
	id       string
	code     string
	language string
	timeout  time.Duration
}

// NewNode creates a new code node.
func NewNode(id string, config map[string]any) (*Node, error) {
	node := &Node{id: id, language: LanguageJavaScript, timeout: DefaultTimeout}
	if err := node.Validate(config); err != nil {
		return nil, err
	}

	node.code, _ = config["code"].(string)

	if language, ok := config["language"].(string); ok && language != "" {
		node.language = language
	}

	if timeout, ok := toMillis(config["timeoutMs"]); ok && timeout > 0 {
		node.timeout = timeout
	}

	return node, nil
}

// toMillis accepts the numeric types produced by JSON, YAML and Go callers.
func toMillis(value any) (time.Duration, bool) {
	switch v := value.(type) {
	case float64:
		return time.Duration(v * float64(time.Millisecond)), true
	case int:
		return time.Duration(v) * time.Millisecond, true
	case int64:
		return time.Duration(v) * time.Millisecond, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}

		return time.Duration(f * float64(time.Millisecond)), true
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
	return models.NodeTypeCode
}

// Execute runs the script. Results that are not objects are wrapped as
// {"result": value}.
func (n *Node) Execute(ctx context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	source := nctx.Render(n.code, map[string]any{"input": input})

	nodes := make(map[string]any, len(nctx.Nodes()))
	for id, io := range nctx.Nodes() {
		nodes[id] = map[string]any{"input": io.Input, "output": io.Output}
	}

	if input == nil {
		input = map[string]any{}
	}

	value, err := runtimes[n.language].Run(ctx, source, Env{
		State:   nctx.State(),
		Input:   input,
		Nodes:   nodes,
		NodeCtx: nctx,
		Timeout: n.timeout,
	})
	if err != nil {
		nctx.Log(ctx, slog.LevelError, "code execution failed", map[string]any{"error": err.Error(), "language": n.language})

		return protocol.Result{}, err
	}

	output, err := normalize(value)
	if err != nil {
		return protocol.Result{}, err
	}

	return protocol.Result{Output: output}, nil
}

func normalize(value any) (map[string]any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("code result is not serializable: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("code result is not serializable: %w", err)
	}

	if object, ok := decoded.(map[string]any); ok {
		return object, nil
	}

	return map[string]any{"result": decoded}, nil
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	if code, ok := config["code"].(string); !ok || code == "" {
		return errors.New("missing required field 'code'")
	}

	if language, ok := config["language"].(string); ok && language != "" {
		if _, known := runtimes[language]; !known {
			return fmt.Errorf("unsupported language '%s'", language)
		}
	}

	return nil
}
