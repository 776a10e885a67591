// Package transform provides the node that reshapes its input with a
// template or a JSONata expression.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/blues/jsonata-go"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

const (
	LanguageTemplate = "template"
	LanguageJSONata  = "jsonata"
)

// Node renders an expression against its input and outputs {result}. A
// template calling the json helper yields a structured value.
type Node struct {
	id         string
	expression string
	language   string
	compiled   *jsonata.Expr
}

// NewNode creates a new transform node.
func NewNode(id string, config map[string]any) (*Node, error) {
	expression, ok := config["expression"].(string)
	if !ok {
		return nil, errors.New("missing required field 'expression'")
	}

	language, _ := config["language"].(string)
	if language == "" {
		language = LanguageTemplate
	}

	node := &Node{id: id, expression: expression, language: language}

	switch language {
	case LanguageTemplate:
	case LanguageJSONata:
		compiled, err := jsonata.Compile(expression)
		if err != nil {
			return nil, fmt.Errorf("invalid jsonata expression '%s': %w", expression, err)
		}

		node.compiled = compiled
	default:
		return nil, fmt.Errorf("unsupported language '%s'", language)
	}

	return node, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeTransform
}

// Execute evaluates the expression. Template rendering failures keep the raw
// expression; JSONata expressions see the same input/state/nodes document.
func (n *Node) Execute(_ context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	data := nctx.Template(map[string]any{"input": input})

	if n.compiled == nil {
		return protocol.Result{Output: map[string]any{"result": template.RenderValue(n.expression, data)}}, nil
	}

	result, err := n.compiled.Eval(data)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("failed to evaluate expression '%s': %w", n.expression, err)
	}

	return protocol.Result{Output: map[string]any{"result": result}}, nil
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	_, err := NewNode(n.id, config)

	return err
}
