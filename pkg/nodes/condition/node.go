// Package condition provides the two-way branching node.
package condition

import (
	"context"
	"errors"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

const (
	DefaultTrueLabel  = "true"
	DefaultFalseLabel = "false"
)

// Node renders an expression and routes to the true or false edge.
type Node struct {
	id         string
	expression string
	trueLabel  string
	falseLabel string
}

// NewNode creates a new condition node.
func NewNode(id string, config map[string]any) (*Node, error) {
	expression, ok := config["expression"].(string)
	if !ok {
		return nil, errors.New("missing required field 'expression'")
	}

	node := &Node{
		id:         id,
		expression: expression,
		trueLabel:  DefaultTrueLabel,
		falseLabel: DefaultFalseLabel,
	}

	if label, ok := config["trueLabel"].(string); ok && label != "" {
		node.trueLabel = label
	}

	if label, ok := config["falseLabel"].(string); ok && label != "" {
		node.falseLabel = label
	}

	return node, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeCondition
}

// Execute evaluates the expression. Only a rendered "true" (trimmed, any case)
// selects the true label.
func (n *Node) Execute(_ context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	rendered := nctx.Render(n.expression, map[string]any{"input": input})
	result := IsTrue(rendered)

	label := n.falseLabel
	if result {
		label = n.trueLabel
	}

	return protocol.Result{
		Output:        map[string]any{"result": result, "evaluated": rendered, "branch": label},
		NextEdgeLabel: label,
	}, nil
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	if _, ok := config["expression"].(string); !ok {
		return errors.New("missing required field 'expression'")
	}

	return nil
}

// IsTrue reports whether a rendered expression is the literal "true".
func IsTrue(rendered string) bool {
	return strings.EqualFold(strings.TrimSpace(rendered), "true")
}
