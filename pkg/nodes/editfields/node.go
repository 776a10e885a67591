// Package editfields provides the node that appends to or replaces state fields.
package editfields

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

const (
	ModeAppend   = "append"
	ModeKeepOnly = "keep_only"
)

// Node renders fields and either merges them into the state or replaces the
// state with only those fields.
type Node struct {
	id     string
	fields map[string]any
	mode   string
}

// NewNode creates a new edit fields node.
func NewNode(id string, config map[string]any) (*Node, error) {
	node := &Node{id: id, mode: ModeAppend}
	if err := node.Validate(config); err != nil {
		return nil, err
	}

	node.fields, _ = config["fields"].(map[string]any)

	if mode, ok := config["mode"].(string); ok && mode != "" {
		node.mode = mode
	}

	return node, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeEditFields
}

// Execute applies the rendered fields to the state.
func (n *Node) Execute(ctx context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	rendered := template.RenderMap(n.fields, nctx.Template(map[string]any{"input": input}))

	var err error
	if n.mode == ModeKeepOnly {
		err = nctx.ReplaceState(ctx, rendered)
	} else {
		err = nctx.SaveState(ctx, rendered)
	}

	if err != nil {
		return protocol.Result{}, fmt.Errorf("failed to save state: %w", err)
	}

	return protocol.Result{Output: rendered}, nil
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	if _, ok := config["fields"].(map[string]any); !ok {
		return errors.New("missing required field 'fields'")
	}

	if mode, ok := config["mode"].(string); ok && mode != "" && mode != ModeAppend && mode != ModeKeepOnly {
		return fmt.Errorf("invalid mode '%s', expected '%s' or '%s'", mode, ModeAppend, ModeKeepOnly)
	}

	return nil
}
