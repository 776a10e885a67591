// Package set provides the node that writes rendered values into the state.
package set

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

// Node renders a key to value map and merges it into the execution state.
type Node struct {
	id     string
	values map[string]any
}

// NewNode creates a new set node.
func NewNode(id string, config map[string]any) (*Node, error) {
	values, ok := config["values"].(map[string]any)
	if !ok {
		return nil, errors.New("missing required field 'values'")
	}

	return &Node{id: id, values: values}, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeSet
}

// Execute renders the values and merges them into the state.
func (n *Node) Execute(ctx context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	rendered := template.RenderMap(n.values, nctx.Template(map[string]any{"input": input}))

	if err := nctx.SaveState(ctx, rendered); err != nil {
		return protocol.Result{}, fmt.Errorf("failed to save state: %w", err)
	}

	return protocol.Result{Output: rendered}, nil
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	if _, ok := config["values"].(map[string]any); !ok {
		return errors.New("missing required field 'values'")
	}

	return nil
}
