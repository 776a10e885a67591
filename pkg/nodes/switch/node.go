// Package switchnode provides the multi-way branching node.
package switchnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/nodes/condition"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Case is one ordered branch of a switch node.
type Case struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Expression string `json:"expression"`
}

// Node evaluates its cases in order and follows the first that renders "true".
type Node struct {
	id    string
	cases []Case
}

// NewNode creates a new switch node.
func NewNode(id string, config map[string]any) (*Node, error) {
	cases, err := parseCases(config)
	if err != nil {
		return nil, err
	}

	return &Node{id: id, cases: cases}, nil
}

func parseCases(config map[string]any) ([]Case, error) {
	raw, ok := config["conditions"].([]any)
	if !ok {
		return nil, errors.New("missing required field 'conditions'")
	}

	cases := make([]Case, 0, len(raw))

	for i, item := range raw {
		caseMap, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("condition %d must be an object", i)
		}

		id, ok := caseMap["id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("condition %d missing 'id'", i)
		}

		expression, ok := caseMap["expression"].(string)
		if !ok {
			return nil, fmt.Errorf("condition %d missing 'expression'", i)
		}

		label, _ := caseMap["label"].(string)

		cases = append(cases, Case{ID: id, Label: label, Expression: expression})
	}

	return cases, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeSwitch
}

// Execute returns the id of the first matching case as the edge selector. When
// nothing matches the branch ends.
func (n *Node) Execute(_ context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	scope := map[string]any{"input": input}

	for _, c := range n.cases {
		if condition.IsTrue(nctx.Render(c.Expression, scope)) {
			return protocol.Result{
				Output:        map[string]any{"matched": c.ID, "label": c.Label},
				NextEdgeLabel: c.ID,
			}, nil
		}
	}

	return protocol.Result{
		Output:      map[string]any{"matched": nil},
		BranchEnded: true,
	}, nil
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	_, err := parseCases(config)

	return err
}
