// Package output provides the node that captures the final result of a branch.
package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

// DefaultKey is the state key used when capturing a single expression.
const DefaultKey = "result"

// Node captures the whole state, or one rendered expression under a key.
type Node struct {
	id         string
	captureAll bool
	key        string
	expression string
}

// NewNode creates a new output node.
func NewNode(id string, config map[string]any) (*Node, error) {
	node := &Node{id: id, captureAll: true, key: DefaultKey}

	if captureAll, ok := config["captureAll"].(bool); ok {
		node.captureAll = captureAll
	}

	if key, ok := config["key"].(string); ok && key != "" {
		node.key = key
	}

	node.expression, _ = config["expression"].(string)

	if err := node.Validate(config); err != nil {
		return nil, err
	}

	return node, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeOutput
}

// Execute captures the output. A bare {{variable}} expression is rendered
// through the json helper so objects keep their structure.
func (n *Node) Execute(ctx context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	if n.captureAll {
		return protocol.Result{Output: nctx.State()}, nil
	}

	tpl := template.WrapBareVariable(n.expression)
	value := template.RenderValue(tpl, nctx.Template(map[string]any{"input": input}))
	patch := map[string]any{n.key: value}

	if err := nctx.SaveState(ctx, patch); err != nil {
		return protocol.Result{}, fmt.Errorf("failed to save state: %w", err)
	}

	return protocol.Result{Output: patch}, nil
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	if captureAll, ok := config["captureAll"].(bool); ok && !captureAll {
		if expression, _ := config["expression"].(string); expression == "" {
			return errors.New("field 'expression' is required when 'captureAll' is false")
		}
	}

	return nil
}
