// Package merge provides the convergence node joining several branches.
package merge

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Node outputs the current execution state. It marks where branches meet and
// performs no merging of its own.
type Node struct {
	id string
}

// NewNode creates a new merge node.
func NewNode(id string, _ map[string]any) (*Node, error) {
	return &Node{id: id}, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeMerge
}

// Execute returns the state as output.
func (n *Node) Execute(_ context.Context, nctx protocol.NodeContext, _ map[string]any) (protocol.Result, error) {
	return protocol.Result{Output: nctx.State()}, nil
}

// Validate accepts any configuration.
func (n *Node) Validate(map[string]any) error {
	return nil
}
